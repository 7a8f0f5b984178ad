package agri_extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func span(typ string, start, end int, conf float64, source string) *EntitySpan {
	return &EntitySpan{Type: typ, Start: start, End: end, Confidence: conf, Source: source}
}

func TestResolveOverlaps_RuleBeatsDecoder(t *testing.T) {
	runes := []rune(plantText)
	model, ok := newSpan(runes, EntityTypeArea, 16, 19, BeginConfidence, SourceModel)
	require.True(t, ok)
	rules := DefaultRuleSet().Extract(plantText)

	out := MergeSpans([]*EntitySpan{model}, rules)

	require.Len(t, out, 2)
	assert.Equal(t, "khu A", out[1].Raw)
	assert.Equal(t, SourceRule, out[1].Source)
	assert.Equal(t, RuleConfidence, out[1].Confidence)
}

func TestResolveOverlaps_TieBreaks(t *testing.T) {
	cases := []struct {
		name  string
		in    []*EntitySpan
		want  []*EntitySpan
		index []int
	}{
		{
			name:  "higher confidence wins at same start",
			in:    []*EntitySpan{span("a", 0, 5, 0.85, SourceModel), span("b", 0, 3, 0.95, SourceRule)},
			index: []int{1},
		},
		{
			name:  "longer wins at same start and confidence",
			in:    []*EntitySpan{span("a", 0, 3, 0.95, SourceRule), span("b", 0, 7, 0.95, SourceRule)},
			index: []int{1},
		},
		{
			name:  "earlier start wins over higher confidence",
			in:    []*EntitySpan{span("late", 3, 8, 0.99, SourceRule), span("early", 0, 5, 0.50, SourceModel)},
			index: []int{1},
		},
		{
			name:  "adjacent spans both kept",
			in:    []*EntitySpan{span("b", 5, 9, 0.85, SourceModel), span("a", 0, 5, 0.85, SourceModel)},
			index: []int{1, 0},
		},
		{
			name:  "full tie keeps first in input order",
			in:    []*EntitySpan{span("first", 2, 4, 0.9, SourceModel), span("second", 2, 4, 0.9, SourceRule)},
			index: []int{0},
		},
		{
			name:  "contained span after a long one dropped",
			in:    []*EntitySpan{span("outer", 0, 10, 0.85, SourceModel), span("inner", 2, 4, 0.95, SourceRule), span("next", 10, 12, 0.5, SourceModel)},
			index: []int{0, 2},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := ResolveOverlaps(tc.in)
			want := make([]*EntitySpan, len(tc.index))
			for i, idx := range tc.index {
				want[i] = tc.in[idx]
			}
			assert.Equal(t, want, out)
		})
	}
}

func TestResolveOverlaps_Idempotent(t *testing.T) {
	in := []*EntitySpan{
		span("a", 0, 4, 0.95, SourceRule),
		span("b", 3, 6, 0.85, SourceModel),
		span("c", 4, 9, 0.75, SourceModel),
		span("d", 9, 9, 0.5, SourceModel),
		span("e", 9, 12, 0.95, SourceRule),
	}
	once := ResolveOverlaps(in)
	twice := ResolveOverlaps(once)

	assert.Equal(t, once, twice)
	for i := 1; i < len(once); i++ {
		assert.LessOrEqual(t, once[i-1].End, once[i].Start)
	}
}

func TestResolveOverlaps_DoesNotReorderInput(t *testing.T) {
	in := []*EntitySpan{span("b", 5, 9, 0.85, SourceModel), span("a", 0, 5, 0.85, SourceModel)}
	_ = ResolveOverlaps(in)
	assert.Equal(t, "b", in[0].Type)
}

func TestResolveOverlaps_Empty(t *testing.T) {
	out := ResolveOverlaps(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.Empty(t, MergeSpans(nil, nil))
}

//Personal.AI order the ending
