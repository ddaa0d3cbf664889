package classifier

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cms-detector/internal/scanner"
)

// TestDefaultRuleOrder pins the priority list; extending rules must keep it intact.
func TestDefaultRuleOrder(t *testing.T) {
	t.Parallel()

	want := []scanner.Platform{
		scanner.PlatformWordPress,
		scanner.PlatformJoomla,
		scanner.PlatformDrupal,
		scanner.PlatformShopify,
		scanner.PlatformWix,
		scanner.PlatformSquarespace,
		scanner.PlatformWebflow,
	}
	rules := DefaultRules()
	require.Len(t, rules, len(want))
	for i, r := range rules {
		require.Equal(t, want[i], r.Platform(), "rule %d", i)
	}
}

func TestClassifyWordPressBeatsJoomla(t *testing.T) {
	t.Parallel()

	snap := scanner.PageSnapshot{
		URL:  "http://example.com/administrator/",
		Body: []byte(`<html><head><meta name="generator" content="Joomla! 4"></head><body><img src="/wp-content/a.png"></body></html>`),
	}
	got := NewDefault().Classify(snap)
	require.Equal(t, scanner.PlatformWordPress, got.Platform)
	require.Equal(t, "Detected WordPress markers", got.Reason)
}

func TestClassifyBuiltinRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		snap scanner.PageSnapshot
		want scanner.Platform
	}{
		{
			name: "wordpress generator",
			snap: scanner.PageSnapshot{Body: []byte(`<meta name="generator" content="WordPress 6.2">`)},
			want: scanner.PlatformWordPress,
		},
		{
			name: "wordpress body marker",
			snap: scanner.PageSnapshot{Body: []byte(`<link href="/wp-content/themes/x.css">`)},
			want: scanner.PlatformWordPress,
		},
		{
			name: "joomla url",
			snap: scanner.PageSnapshot{URL: "http://example.com/administrator/index.php"},
			want: scanner.PlatformJoomla,
		},
		{
			name: "joomla final url",
			snap: scanner.PageSnapshot{URL: "http://example.com", FinalURL: "http://example.com/administrator/"},
			want: scanner.PlatformJoomla,
		},
		{
			name: "joomla generator",
			snap: scanner.PageSnapshot{Body: []byte(`<meta name="generator" content="Joomla! - Open Source Content Management">`)},
			want: scanner.PlatformJoomla,
		},
		{
			name: "drupal header",
			snap: scanner.PageSnapshot{Headers: http.Header{"X-Generator": {"Drupal 10 (https://www.drupal.org)"}}},
			want: scanner.PlatformDrupal,
		},
		{
			name: "drupal theme path",
			snap: scanner.PageSnapshot{Body: []byte(`<script src="/sites/all/themes/zen/app.js"></script>`)},
			want: scanner.PlatformDrupal,
		},
		{
			name: "shopify cdn",
			snap: scanner.PageSnapshot{Body: []byte(`<script src="//cdn.shopify.com/s/x.js"></script>`)},
			want: scanner.PlatformShopify,
		},
		{
			name: "shopify generator",
			snap: scanner.PageSnapshot{Body: []byte(`<meta name="generator" content="Shopify">`)},
			want: scanner.PlatformShopify,
		},
		{
			name: "wix static",
			snap: scanner.PageSnapshot{Body: []byte(`<img src="https://static.wix.com/logo.png">`)},
			want: scanner.PlatformWix,
		},
		{
			name: "squarespace static",
			snap: scanner.PageSnapshot{Body: []byte(`<link href="https://static.squarespace.com/universal/a.css">`)},
			want: scanner.PlatformSquarespace,
		},
		{
			name: "webflow generator",
			snap: scanner.PageSnapshot{Body: []byte(`<meta name="generator" content="Webflow">`)},
			want: scanner.PlatformWebflow,
		},
		{
			name: "no markers",
			snap: scanner.PageSnapshot{Body: []byte(`<html><body>hello</body></html>`)},
			want: scanner.PlatformUnknown,
		},
		{
			name: "empty snapshot",
			snap: scanner.PageSnapshot{},
			want: scanner.PlatformUnknown,
		},
	}

	engine := NewDefault()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := engine.Classify(tt.snap)
			require.Equal(t, tt.want, got.Platform)
		})
	}
}

func TestClassifyWordPressGeneratorScenario(t *testing.T) {
	t.Parallel()

	snap := scanner.PageSnapshot{Body: []byte(`<meta name="generator" content="WordPress 6.2">`)}
	require.Equal(t,
		scanner.Label{Platform: scanner.PlatformWordPress, Reason: "Detected WordPress markers"},
		NewDefault().Classify(snap),
	)
}

func TestClassifyWixHeaderScenario(t *testing.T) {
	t.Parallel()

	snap := scanner.PageSnapshot{Headers: http.Header{"X-Wix-Request-Id": {"abc123"}}}
	require.Equal(t,
		scanner.Label{Platform: scanner.PlatformWix, Reason: "Detected Wix markers"},
		NewDefault().Classify(snap),
	)
}

func TestClassifyUnknownReason(t *testing.T) {
	t.Parallel()

	got := NewDefault().Classify(scanner.PageSnapshot{Body: []byte("plain")})
	require.Equal(t, scanner.Label{Platform: scanner.PlatformUnknown, Reason: "No CMS markers found"}, got)
}

func TestClassifyIsIdempotent(t *testing.T) {
	t.Parallel()

	snap := scanner.PageSnapshot{
		URL:     "http://example.com",
		Headers: http.Header{"X-Generator": {"Drupal 9"}},
		Body:    []byte(`<meta name="generator" content="Drupal 9">`),
	}
	before := string(snap.Body)
	engine := NewDefault()
	first := engine.Classify(snap)
	second := engine.Classify(snap)
	require.Equal(t, first, second)
	require.Equal(t, before, string(snap.Body))
	require.Equal(t, "Drupal 9", snap.Headers.Get("X-Generator"))
}

func TestClassifyGeneratorUsesFirstTag(t *testing.T) {
	t.Parallel()

	snap := scanner.PageSnapshot{Body: []byte(
		`<meta name="generator" content="Hugo 0.120"><meta name="generator" content="Webflow">`,
	)}
	require.Equal(t, scanner.PlatformUnknown, NewDefault().Classify(snap).Platform)
}

func TestExtraRulesRunAfterBuiltins(t *testing.T) {
	t.Parallel()

	ghost := MarkerRule{Label: "Ghost", GeneratorContains: []string{"Ghost"}}
	greedy := MarkerRule{Label: "Greedy", BodyContains: []string{"<html"}}
	engine := NewDefault(ghost, greedy)

	got := engine.Classify(scanner.PageSnapshot{Body: []byte(`<html><meta name="generator" content="Ghost 5.0"></html>`)})
	require.Equal(t, scanner.Platform("Ghost"), got.Platform)
	require.Equal(t, "Detected Ghost markers", got.Reason)

	got = engine.Classify(scanner.PageSnapshot{Body: []byte(`<html><script src="//cdn.shopify.com/a.js"></script></html>`)})
	require.Equal(t, scanner.PlatformShopify, got.Platform)
}

func TestEngineRulesReturnsCopy(t *testing.T) {
	t.Parallel()

	engine := NewDefault()
	rules := engine.Rules()
	rules[0] = MarkerRule{Label: "Hijack", BodyContains: []string{"x"}}
	require.Equal(t, scanner.PlatformWordPress, engine.Rules()[0].Platform())
}

func TestMarkerRuleValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, MarkerRule{BodyContains: []string{"x"}}.Validate())
	require.Error(t, MarkerRule{Label: "Ghost"}.Validate())
	require.NoError(t, MarkerRule{Label: "Ghost", HeaderPresent: []string{"X-Ghost-Cache-Status"}}.Validate())
}

func TestMarkerRuleHeaderPresentIgnoresEmptyValue(t *testing.T) {
	t.Parallel()

	rule := MarkerRule{Label: scanner.PlatformWix, HeaderPresent: []string{"x-wix-request-id"}}
	require.False(t, rule.Matches(&Evidence{Headers: http.Header{"X-Wix-Request-Id": {""}}}))
	require.True(t, rule.Matches(&Evidence{Headers: http.Header{"X-Wix-Request-Id": {"1"}}}))
	require.False(t, rule.Matches(nil))
}
