package agri_extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

func TestRuleSet_Default(t *testing.T) {
	rs := DefaultRuleSet()
	specs := rs.Specs()

	require.Equal(t, len(DefaultRuleSpecs()), rs.Len())
	assert.Equal(t, EntityTypeCrop, specs[0].Type, "crops come first")
	assert.Equal(t, EntityTypeDate, specs[len(specs)-1].Type, "dates come last")
	for _, s := range specs {
		assert.Equal(t, RuleConfidence, s.Confidence, s.Name)
	}
}

func TestRuleSet_ExtractPlantingSentence(t *testing.T) {
	spans := DefaultRuleSet().Extract(plantText)

	require.Len(t, spans, 2)
	assert.Equal(t, EntitySpan{Type: EntityTypeCrop, Raw: "cà chua", Start: 6, End: 13, Confidence: RuleConfidence, Source: SourceRule}, *spans[0])
	assert.Equal(t, EntitySpan{Type: EntityTypeArea, Raw: "khu A", Start: 16, End: 21, Confidence: RuleConfidence, Source: SourceRule}, *spans[1])
}

func TestRuleSet_WordBoundaries(t *testing.T) {
	rs := DefaultRuleSet()
	cases := []struct {
		name string
		text string
		want []string
	}{
		{"trailing letter", "cà chuaa", nil},
		{"leading letter", "xcà chua", nil},
		{"letter after area letter", "khu An", nil},
		{"digits followed by letter", "hàng 12a", nil},
		{"area number", "tưới hàng 12 trước", []string{"hàng 12"}},
		{"garden name", "vườn cam sành", []string{"vườn cam"}},
		{"punctuation is a boundary", "(cà chua)", []string{"cà chua"}},
		{"retry after rejected start", "xsu su su", []string{"su su"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := spanRaws(rs.Extract(tc.text))
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRuleSet_CaseInsensitive(t *testing.T) {
	spans := DefaultRuleSet().Extract("Bật MÁY BƠM ở khu b")

	assert.Equal(t, []string{"MÁY BƠM", "khu b"}, spanRaws(spans))
	assert.Equal(t, []string{EntityTypeDevice, EntityTypeArea}, spanTypes(spans))
}

func TestRuleSet_UnboundedDurationAndDate(t *testing.T) {
	spans := DefaultRuleSet().Extract("tưới 15phút hôm nay")

	assert.Equal(t, []string{"15phút", "hôm nay"}, spanRaws(spans))
	assert.Equal(t, []string{EntityTypeDuration, EntityTypeDate}, spanTypes(spans))
}

func TestRuleSet_PatternsMayOverlap(t *testing.T) {
	text := "tháng 11 năm 2024"
	spans := DefaultRuleSet().Extract(text)

	assert.Equal(t, []string{"tháng 11 năm 2024", "năm 2024", "tháng 11"}, spanRaws(spans))
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, 17, spans[0].End)
	assert.Equal(t, 9, spans[1].Start)
	for _, s := range spans {
		assert.Equal(t, string([]rune(text)[s.Start:s.End]), s.Raw)
	}
}

func TestRuleSet_NumericDate(t *testing.T) {
	spans := DefaultRuleSet().Extract("thu hoạch 15/3/24")

	require.Len(t, spans, 1)
	assert.Equal(t, "15/3/24", spans[0].Raw)
	assert.Equal(t, 10, spans[0].Start)
}

func TestRuleSet_NonBreakingSpace(t *testing.T) {
	spans := DefaultRuleSet().Extract("máy\u00a0bơm")
	require.Len(t, spans, 1)
	assert.Equal(t, EntityTypeDevice, spans[0].Type)
}

func TestRuleSet_Deterministic(t *testing.T) {
	rs := DefaultRuleSet()
	text := "tháng trước cà phê ở vườn 3 bị héo, máy tưới chạy 2 giờ"

	first := rs.Extract(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, rs.Extract(text))
	}
	assert.Equal(t, first, DefaultRuleSet().Extract(text))
}

func TestRuleSet_Empty(t *testing.T) {
	assert.Empty(t, DefaultRuleSet().Extract(""))
	assert.Empty(t, DefaultRuleSet().Extract("xin chào"))
}

func TestCompileRules_Errors(t *testing.T) {
	_, err := CompileRules([]RuleSpec{{Name: "empty", Type: EntityTypeCrop}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	_, err = CompileRules([]RuleSpec{{Name: "no type", Pattern: "cà"}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	_, err = CompileRules([]RuleSpec{{Name: "broken", Pattern: "(cà", Type: EntityTypeCrop}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	assert.Panics(t, func() { MustCompileRules([]RuleSpec{{Pattern: "["}}) })
}

func TestCompileRules_DefaultsConfidence(t *testing.T) {
	rs, err := CompileRules([]RuleSpec{{Name: "pest", Pattern: `rệp\s+sáp`, Type: "pest"}})
	require.NoError(t, err)

	spans := rs.Extract("có rệp sáp")
	require.Len(t, spans, 1)
	assert.Equal(t, RuleConfidence, spans[0].Confidence)
	assert.Equal(t, "pest", spans[0].Type)
}

func TestByteToRuneIndex(t *testing.T) {
	assert.Equal(t, []int{0, 1, 1, 2}, byteToRuneIndex("aà"))
	assert.Equal(t, []int{0}, byteToRuneIndex(""))
	assert.Equal(t, []int{0, 1, 2}, byteToRuneIndex("\xffa"))
}

//Personal.AI order the ending
