package agri_extractor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntitySpan_JSONAlwaysCarriesValue(t *testing.T) {
	span, ok := newSpan([]rune("khu A"), EntityTypeArea, 0, 5, 0.95, SourceRule)
	require.True(t, ok)

	b, err := json.Marshal(span)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.Contains(t, fields, "value")
	assert.Equal(t, "", fields["value"])
	assert.Equal(t, "khu A", fields["raw"])
}

func TestNewSpan_RejectsOutOfRange(t *testing.T) {
	runes := []rune("cà chua")
	for _, c := range [][2]int{{-1, 2}, {0, 8}, {5, 3}} {
		_, ok := newSpan(runes, EntityTypeCrop, c[0], c[1], BeginConfidence, SourceModel)
		assert.False(t, ok, "span %v", c)
	}
	span, ok := newSpan(runes, EntityTypeCrop, 0, 7, BeginConfidence, SourceModel)
	require.True(t, ok)
	assert.Equal(t, "cà chua", span.Raw)
	assert.Equal(t, 7, span.Len())
}

//Personal.AI order the ending
