// Package classifier labels fetched homepages with the CMS that most likely
// produced them. Rules are evaluated in a fixed priority order and the first
// match wins.
package classifier

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/JakeFAU/cms-detector/internal/scanner"
)

// Evidence is the normalized view of a snapshot that rules inspect. It is
// built once per classification so the generator meta tag is parsed only once.
type Evidence struct {
	Body      string
	Generator string
	Headers   http.Header
	URLs      []string
}

// Rule is a single detection heuristic.
type Rule interface {
	Platform() scanner.Platform
	Matches(ev *Evidence) bool
}

// MarkerRule matches when any of its markers is present. Substring checks are
// case-sensitive; header names are not.
type MarkerRule struct {
	Label             scanner.Platform  `mapstructure:"platform" yaml:"platform"`
	BodyContains      []string          `mapstructure:"body_contains" yaml:"body_contains"`
	GeneratorContains []string          `mapstructure:"generator_contains" yaml:"generator_contains"`
	URLContains       []string          `mapstructure:"url_contains" yaml:"url_contains"`
	HeaderContains    map[string]string `mapstructure:"header_contains" yaml:"header_contains"`
	HeaderPresent     []string          `mapstructure:"header_present" yaml:"header_present"`
}

// Platform implements Rule.
func (r MarkerRule) Platform() scanner.Platform {
	return r.Label
}

// Matches implements Rule.
func (r MarkerRule) Matches(ev *Evidence) bool {
	if ev == nil {
		return false
	}
	switch {
	case containsAny(ev.Body, r.BodyContains):
		return true
	case containsAny(ev.Generator, r.GeneratorContains):
		return true
	case r.urlMatches(ev.URLs):
		return true
	case r.headerMatches(ev.Headers):
		return true
	default:
		return false
	}
}

// Validate rejects rules that could never match or have no label.
func (r MarkerRule) Validate() error {
	if strings.TrimSpace(string(r.Label)) == "" {
		return fmt.Errorf("rule platform must be set")
	}
	if len(r.BodyContains)+len(r.GeneratorContains)+len(r.URLContains)+
		len(r.HeaderContains)+len(r.HeaderPresent) == 0 {
		return fmt.Errorf("rule %q must declare at least one marker", r.Label)
	}
	return nil
}

func (r MarkerRule) urlMatches(urls []string) bool {
	for _, u := range urls {
		if containsAny(u, r.URLContains) {
			return true
		}
	}
	return false
}

func (r MarkerRule) headerMatches(h http.Header) bool {
	if len(h) == 0 {
		return false
	}
	for name, marker := range r.HeaderContains {
		if marker != "" && strings.Contains(h.Get(name), marker) {
			return true
		}
	}
	for _, name := range r.HeaderPresent {
		if h.Get(name) != "" {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	if haystack == "" {
		return false
	}
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// DefaultRules returns the built-in rules in priority order. The order is
// authoritative: a page carrying markers of several platforms is labeled by
// the earliest rule.
func DefaultRules() []Rule {
	return []Rule{
		MarkerRule{
			Label:             scanner.PlatformWordPress,
			BodyContains:      []string{"/wp-content/"},
			GeneratorContains: []string{"WordPress"},
		},
		MarkerRule{
			Label:             scanner.PlatformJoomla,
			URLContains:       []string{"/administrator/"},
			GeneratorContains: []string{"Joomla"},
		},
		MarkerRule{
			Label:          scanner.PlatformDrupal,
			HeaderContains: map[string]string{"X-Generator": "Drupal"},
			BodyContains:   []string{"/sites/all/themes/"},
		},
		MarkerRule{
			Label:             scanner.PlatformShopify,
			BodyContains:      []string{"cdn.shopify.com"},
			GeneratorContains: []string{"Shopify"},
		},
		MarkerRule{
			Label:         scanner.PlatformWix,
			BodyContains:  []string{"static.wix.com"},
			HeaderPresent: []string{"X-Wix-Request-Id"},
		},
		MarkerRule{
			Label:        scanner.PlatformSquarespace,
			BodyContains: []string{"static.squarespace.com"},
		},
		MarkerRule{
			Label:             scanner.PlatformWebflow,
			GeneratorContains: []string{"Webflow"},
		},
	}
}
