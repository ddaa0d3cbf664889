package classifier

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/cms-detector/internal/scanner"
)

const generatorSelector = `meta[name="generator"]`

// Engine evaluates an ordered rule list against page snapshots.
type Engine struct {
	rules []Rule
}

// New builds an Engine that evaluates rules in the given order.
func New(rules ...Rule) *Engine {
	cp := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r != nil {
			cp = append(cp, r)
		}
	}
	return &Engine{rules: cp}
}

// NewDefault builds an Engine with the built-in rules followed by extra.
func NewDefault(extra ...Rule) *Engine {
	return New(append(DefaultRules(), extra...)...)
}

// Rules returns a copy of the rule list in evaluation order.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Classify returns the label of the first matching rule, or Unknown.
func (e *Engine) Classify(snapshot scanner.PageSnapshot) scanner.Label {
	ev := NewEvidence(snapshot)
	for _, rule := range e.rules {
		if rule.Matches(ev) {
			return scanner.Label{
				Platform: rule.Platform(),
				Reason:   fmt.Sprintf("Detected %s markers", rule.Platform()),
			}
		}
	}
	return scanner.Label{Platform: scanner.PlatformUnknown, Reason: scanner.ReasonNoMarkers}
}

// NewEvidence derives rule inputs from a snapshot without mutating it.
func NewEvidence(snapshot scanner.PageSnapshot) *Evidence {
	urls := make([]string, 0, 2)
	if snapshot.URL != "" {
		urls = append(urls, snapshot.URL)
	}
	if snapshot.FinalURL != "" && snapshot.FinalURL != snapshot.URL {
		urls = append(urls, snapshot.FinalURL)
	}
	return &Evidence{
		Body:      string(snapshot.Body),
		Generator: extractGenerator(snapshot.Body),
		Headers:   snapshot.Headers,
		URLs:      urls,
	}
}

// extractGenerator returns the content of the first generator meta tag.
func extractGenerator(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	content, _ := doc.Find(generatorSelector).First().Attr("content")
	return strings.TrimSpace(content)
}
