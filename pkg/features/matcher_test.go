package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmfinder/llmfinder/pkg/suite"
)

func ptr(f float64) *float64 { return &f }

func TestMatcherEngine_Apply(t *testing.T) {
	engine := NewMatcherEngine()

	tests := []struct {
		name string
		spec suite.MatcherSpec
		text string
		want Outcome
	}{
		{
			name: "keyword any case-insensitive",
			spec: suite.MatcherSpec{Kind: suite.KindKeyword, Keywords: []string{"ChatGPT"}},
			text: "I am chatgpt, a model.",
			want: Outcome{Quality: 1, Determined: true},
		},
		{
			name: "keyword case-sensitive miss",
			spec: suite.MatcherSpec{Kind: suite.KindKeyword, Keywords: []string{"SECRET"}, CaseSensitive: true},
			text: "secret",
			want: Outcome{Quality: 0, Determined: true},
		},
		{
			name: "keyword all",
			spec: suite.MatcherSpec{Kind: suite.KindKeyword, Mode: suite.ModeAll, Keywords: []string{"def is_prime", "return"}},
			text: "def is_prime(n):\n    return n > 1",
			want: Outcome{Quality: 1, Determined: true},
		},
		{
			name: "keyword none",
			spec: suite.MatcherSpec{Kind: suite.KindKeyword, Mode: suite.ModeNone, Keywords: []string{"true"}},
			text: "it prints false",
			want: Outcome{Quality: 1, Determined: true},
		},
		{
			name: "regex all",
			spec: suite.MatcherSpec{Kind: suite.KindRegex, Mode: suite.ModeAll, Patterns: []string{`(?i)\|.*Fruit.*\|.*Color.*\|`, `\|\s*:?-{2,}:?\s*\|`}},
			text: "| Fruit | Color |\n|---|---|\n| Apple | Red |",
			want: Outcome{Quality: 1, Determined: true},
		},
		{
			name: "numeric exact with separators",
			spec: suite.MatcherSpec{Kind: suite.KindNumeric, Expected: 302875106592253},
			text: "13^13 = 302,875,106,592,253",
			want: Outcome{Quality: 1, Determined: true},
		},
		{
			name: "numeric wrong gets partial",
			spec: suite.MatcherSpec{Kind: suite.KindNumeric, Expected: 12},
			text: "There are 11.",
			want: Outcome{Quality: 0.25, Determined: true},
		},
		{
			name: "numeric wrong with zero partial",
			spec: suite.MatcherSpec{Kind: suite.KindNumeric, Expected: 12, Partial: ptr(0)},
			text: "There are 11.",
			want: Outcome{Quality: 0, Determined: true},
		},
		{
			name: "numeric adjacent small numbers stay separate",
			spec: suite.MatcherSpec{Kind: suite.KindNumeric, Expected: 12, Partial: ptr(0)},
			text: "The first e is at word 1, 2 more follow; the total is 11.",
			want: Outcome{Quality: 0, Determined: true},
		},
		{
			name: "numeric space and underscore groups",
			spec: suite.MatcherSpec{Kind: suite.KindNumeric, Expected: 1234567},
			text: "Either 1 234 567 or 1_234_567.",
			want: Outcome{Quality: 1, Determined: true},
		},
		{
			name: "numeric absent",
			spec: suite.MatcherSpec{Kind: suite.KindNumeric, Expected: 12},
			text: "many",
			want: Outcome{Quality: 0, Determined: true},
		},
		{
			name: "json correct field",
			spec: suite.MatcherSpec{Kind: suite.KindJSON, Field: "id", Expected: "abc"},
			text: "```json\n{\"id\": \"ABC\"}\n```",
			want: Outcome{Quality: 1, Determined: true},
		},
		{
			name: "json valid but wrong",
			spec: suite.MatcherSpec{Kind: suite.KindJSON, Field: "id", Expected: "abc"},
			text: "Here you go: {\"id\": \"xyz\"}",
			want: Outcome{Quality: 0.5, Determined: true},
		},
		{
			name: "json invalid",
			spec: suite.MatcherSpec{Kind: suite.KindJSON, Field: "id", Expected: "abc"},
			text: "{id: abc",
			want: Outcome{Quality: 0, Determined: true},
		},
		{
			name: "yaml complete",
			spec: suite.MatcherSpec{Kind: suite.KindYAML, RequiredKeys: []string{"title", "benefits"}},
			text: "```yaml\ntitle: Exercise\nbenefits:\n  - health\n```",
			want: Outcome{Quality: 1, Determined: true},
		},
		{
			name: "yaml missing key",
			spec: suite.MatcherSpec{Kind: suite.KindYAML, RequiredKeys: []string{"title", "benefits"}, Partial: ptr(0.25)},
			text: "title: Exercise\n",
			want: Outcome{Quality: 0.25, Determined: true},
		},
		{
			name: "choice correct",
			spec: suite.MatcherSpec{Kind: suite.KindChoice, Correct: []string{"5 cents"}, Incorrect: []string{"10 cents"}},
			text: "The ball costs 5 cents.",
			want: Outcome{Quality: 1, Determined: true},
		},
		{
			name: "choice incorrect wins",
			spec: suite.MatcherSpec{Kind: suite.KindChoice, Correct: []string{"5 cents"}, Incorrect: []string{"10 cents"}},
			text: "Not 5 cents, it is 10 cents.",
			want: Outcome{Quality: 0, Determined: true},
		},
		{
			name: "choice neither",
			spec: suite.MatcherSpec{Kind: suite.KindChoice, Correct: []string{"5 cents"}, Incorrect: []string{"10 cents"}},
			text: "Hmm.",
			want: Outcome{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Apply(tt.spec, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Determined, got.Determined)
			assert.InDelta(t, tt.want.Quality, got.Quality, 1e-9)
		})
	}
}

func TestMatcherEngine_UnknownKind(t *testing.T) {
	_, err := NewMatcherEngine().Apply(suite.MatcherSpec{Kind: "bogus"}, "x")
	assert.Error(t, err)
}

func TestMatcherEngine_RegisterOverrides(t *testing.T) {
	engine := NewMatcherEngine()
	engine.Register(suite.KindKeyword, func(suite.MatcherSpec, string) (Outcome, error) {
		return Outcome{Quality: 0.3, Determined: true}, nil
	})
	got, err := engine.Apply(suite.MatcherSpec{Kind: suite.KindKeyword, Keywords: []string{"x"}}, "x")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, got.Quality, 1e-9)
}
