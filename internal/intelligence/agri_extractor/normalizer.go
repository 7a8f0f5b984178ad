package agri_extractor

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// isoDate is the layout of normalised absolute dates.
const isoDate = "2006-01-02"

var (
	dmyRe    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})`)
	numRunRe = regexp.MustCompile(`[\d,.]+`)
)

// relativeDates are checked in order against the lower-cased text; the value
// is what a downstream date resolver receives.
var relativeDates = []struct {
	phrase string
	value  string
}{
	{"tuần này", "tuần này"},
	{"tuần trước", "tuần trước"},
	{"tháng này", "tháng này"},
	{"tháng trước", "tháng trước"},
	{"năm này", "năm nay"},
	{"năm trước", "năm trước"},
	{"năm ngoái", "năm trước"},
}

// ValueNormalizer fills EntitySpan.Value. Its clock is injectable so relative
// dates can be tested.
type ValueNormalizer struct {
	now func() time.Time
}

// NewValueNormalizer returns a normalizer using now, or time.Now when nil.
func NewValueNormalizer(now func() time.Time) *ValueNormalizer {
	if now == nil {
		now = time.Now
	}
	return &ValueNormalizer{now: now}
}

// Normalize returns the canonical value of a span's raw text, read in NFC.
func (n *ValueNormalizer) Normalize(span *EntitySpan) string {
	raw := norm.NFC.String(span.Raw)
	switch span.Type {
	case EntityTypeDate:
		return n.NormalizeDate(raw)
	case EntityTypeMoney:
		return NormalizeMoney(raw)
	default:
		return strings.TrimSpace(raw)
	}
}

// Apply sets Value on every span.
func (n *ValueNormalizer) Apply(spans []*EntitySpan) {
	for _, s := range spans {
		s.Value = n.Normalize(s)
	}
}

// NormalizeDate maps "hôm nay"/"hôm qua" to ISO dates, keeps relative
// week/month/year phrases in canonical Vietnamese, and converts d/m/y dates to
// YYYY-MM-DD. Anything else is returned unchanged.
func (n *ValueNormalizer) NormalizeDate(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	now := n.now()

	switch {
	case strings.Contains(s, "hôm nay"):
		return now.Format(isoDate)
	case strings.Contains(s, "hôm qua"):
		return now.AddDate(0, 0, -1).Format(isoDate)
	}
	for _, rd := range relativeDates {
		if strings.Contains(s, rd.phrase) {
			return rd.value
		}
	}

	if m := dmyRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year := m[3]
		if len(year) == 2 {
			year = "20" + year
		}
		return fmt.Sprintf("%s-%02d-%02d", year, month, day)
	}
	return raw
}

// NormalizeMoney converts amounts such as "200k", "1.5 triệu" or "2 tỷ" to an
// integer VND string. It returns "0" when no number can be read.
func NormalizeMoney(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))

	run := numRunRe.FindString(s)
	if run == "" {
		return "0"
	}
	num := strings.ReplaceAll(run, ",", ".")
	if strings.Count(num, ".") > 1 {
		// thousands separators, e.g. "1.500.000"
		num = strings.ReplaceAll(num, ".", "")
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return "0"
	}

	switch {
	case strings.Contains(s, "tỷ"):
		v *= 1e9
	case strings.Contains(s, "triệu"), strings.Contains(s, "tr"):
		v *= 1e6
	case strings.Contains(s, "k"):
		v *= 1e3
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "0"
	}
	return strconv.FormatFloat(math.Trunc(v), 'f', 0, 64)
}

//Personal.AI order the ending
