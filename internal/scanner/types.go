package scanner

import (
	"net/http"
)

// Platform is the CMS label attached to a classification result.
type Platform string

// Platform labels produced by the built-in rules.
const (
	PlatformWordPress   Platform = "WordPress"
	PlatformJoomla      Platform = "Joomla"
	PlatformDrupal      Platform = "Drupal"
	PlatformShopify     Platform = "Shopify"
	PlatformWix         Platform = "Wix"
	PlatformSquarespace Platform = "Squarespace"
	PlatformWebflow     Platform = "Webflow"
	PlatformUnknown     Platform = "Unknown"
	PlatformError       Platform = "Error"
)

// String returns the label as written to sinks.
func (p Platform) String() string {
	return string(p)
}

// IsBuiltin reports whether p is one of the labels shipped with the engine.
func (p Platform) IsBuiltin() bool {
	switch p {
	case PlatformWordPress, PlatformJoomla, PlatformDrupal, PlatformShopify,
		PlatformWix, PlatformSquarespace, PlatformWebflow, PlatformUnknown, PlatformError:
		return true
	default:
		return false
	}
}

// ScanRequest is one input row.
type ScanRequest struct {
	Organization string
	URL          string
}

// PageSnapshot is the in-memory view of a fetched homepage.
type PageSnapshot struct {
	// URL is the normalized URL that was requested.
	URL string
	// FinalURL is the URL the response was served from after redirects.
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Label is the outcome of classifying a snapshot.
type Label struct {
	Platform Platform
	Reason   string
}

// ClassificationResult is the record persisted for every ScanRequest.
type ClassificationResult struct {
	Organization string   `json:"organization"`
	URL          string   `json:"url"`
	Platform     Platform `json:"platform"`
	Reason       string   `json:"reason"`
}

// NewResult joins a request with its label.
func NewResult(req ScanRequest, label Label) ClassificationResult {
	return ClassificationResult{
		Organization: req.Organization,
		URL:          req.URL,
		Platform:     label.Platform,
		Reason:       label.Reason,
	}
}

// ErrorResult builds the Error record for a request that could not be classified.
func ErrorResult(req ScanRequest, err error) ClassificationResult {
	return NewResult(req, Label{Platform: PlatformError, Reason: Reason(err)})
}
