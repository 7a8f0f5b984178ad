package agri_extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 10, 30, 0, 0, time.Local) }
}

func TestNormalizeMoney(t *testing.T) {
	cases := map[string]string{
		"200k":           "200000",
		"1.5 triệu":      "1500000",
		"2 tỷ":           "2000000000",
		"no digits here": "0",
		"1,5 triệu":      "1500000",
		"3tr":            "3000000",
		"1.500.000 đồng": "1500000",
		"500":            "500",
		"2.7k":           "2700",
		"  7 TỶ ":        "7000000000",
		".":              "0",
		"":               "0",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, NormalizeMoney(in))
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	n := NewValueNormalizer(fixedClock(2024, time.May, 10))
	cases := map[string]string{
		"15/3/24":            "2024-03-15",
		"1/12/2023":          "2023-12-01",
		"05/06/2025 lúc 7h":  "2025-06-05",
		"hôm nay":            "2024-05-10",
		"Hôm Qua":            "2024-05-09",
		"tuần này":           "tuần này",
		"tuần trước":         "tuần trước",
		"tháng này":          "tháng này",
		"tháng trước":        "tháng trước",
		"năm này":            "năm nay",
		"năm trước":          "năm trước",
		"tháng 11 năm ngoái": "năm trước",
		"quý 1":              "quý 1",
		"Tháng 11":           "Tháng 11",
		"năm nay":            "năm nay",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, n.NormalizeDate(in))
		})
	}
}

func TestNormalizeDate_YesterdayCrossesMonth(t *testing.T) {
	n := NewValueNormalizer(fixedClock(2024, time.March, 1))
	assert.Equal(t, "2024-02-29", n.NormalizeDate("hôm qua"))
}

func TestNormalizeDate_TodayUsesClock(t *testing.T) {
	n := NewValueNormalizer(nil)
	assert.Equal(t, time.Now().Format("2006-01-02"), n.NormalizeDate("hôm nay"))
}

func TestValueNormalizer_Apply(t *testing.T) {
	n := NewValueNormalizer(fixedClock(2024, time.May, 10))
	spans := []*EntitySpan{
		{Type: EntityTypeDate, Raw: "hôm nay"},
		{Type: EntityTypeMoney, Raw: "200k"},
		{Type: EntityTypeCrop, Raw: " cà chua "},
		{Type: EntityTypeDuration, Raw: "15 phút"},
	}
	n.Apply(spans)

	assert.Equal(t, "2024-05-10", spans[0].Value)
	assert.Equal(t, "200000", spans[1].Value)
	assert.Equal(t, "cà chua", spans[2].Value)
	assert.Equal(t, "15 phút", spans[3].Value)
}

//Personal.AI order the ending
