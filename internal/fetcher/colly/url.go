package collyfetcher

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/cms-detector/internal/scanner"
)

var schemePrefix = regexp.MustCompile(`(?i)^https?://`)

// NormalizeURL trims rawURL and prepends http:// when it has no http(s) scheme.
// Blank input is rejected with an invalid-input FetchError.
func NormalizeURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", scanner.NewInvalidInputError()
	}
	if !schemePrefix.MatchString(trimmed) {
		trimmed = "http://" + trimmed
	}
	return trimmed, nil
}
