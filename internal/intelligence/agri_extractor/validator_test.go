package agri_extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityFilter_Default(t *testing.T) {
	f := DefaultEntityFilter()
	cases := []struct {
		typ    string
		raw    string
		reject bool
	}{
		{EntityTypeCrop, "Nam", true},
		{EntityTypeCrop, "  chua ", true},
		{EntityTypeCrop, "ĐÔNG", true},
		{EntityTypeCrop, "c", true},
		{EntityTypeCrop, "ớt", false},
		{EntityTypeCrop, "cà chua", false},
		{EntityTypeArea, "3", true},
		{EntityTypeArea, " 0", true},
		{EntityTypeArea, "12", false},
		{EntityTypeArea, "khu 3", false},
		{EntityTypeArea, "A", false},
		{EntityTypeDevice, "1", false},
		{EntityTypeDate, "nam", false},
	}
	for _, tc := range cases {
		t.Run(tc.typ+"/"+tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.reject, f.Reject(&EntitySpan{Type: tc.typ, Raw: tc.raw}))
		})
	}
}

func TestEntityFilter_FilterKeepsOrder(t *testing.T) {
	in := []*EntitySpan{
		{Type: EntityTypeCrop, Raw: "nam"},
		{Type: EntityTypeCrop, Raw: "cà phê"},
		{Type: EntityTypeArea, Raw: "7"},
		{Type: EntityTypeArea, Raw: "luống 7"},
	}
	out := DefaultEntityFilter().Filter(in)
	assert.Equal(t, []string{"cà phê", "luống 7"}, spanRaws(out))
}

func TestEntityFilter_Custom(t *testing.T) {
	f := NewEntityFilter(map[string]FilterRule{
		EntityTypeDevice: {Blocklist: []string{" Máy "}, RejectSingleRune: true},
	})
	assert.True(t, f.Reject(&EntitySpan{Type: EntityTypeDevice, Raw: "máy"}))
	assert.True(t, f.Reject(&EntitySpan{Type: EntityTypeDevice, Raw: "x"}))
	assert.False(t, f.Reject(&EntitySpan{Type: EntityTypeCrop, Raw: "nam"}))
	assert.Empty(t, f.Filter(nil))
}

//Personal.AI order the ending
