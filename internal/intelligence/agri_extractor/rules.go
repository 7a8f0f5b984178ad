package agri_extractor

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// RuleConfidence is the fixed confidence of every built-in rule. It sits above
// BeginConfidence so curated lexical matches win ties against the model.
const RuleConfidence = 0.95

// RuleSpec is the declarative form of a rule, as loaded from code or config.
type RuleSpec struct {
	Name       string  `json:"name" yaml:"name" mapstructure:"name"`
	Pattern    string  `json:"pattern" yaml:"pattern" mapstructure:"pattern"`
	Type       string  `json:"type" yaml:"type" mapstructure:"type"`
	Confidence float64 `json:"confidence" yaml:"confidence" mapstructure:"confidence"`

	// WordBounded requires a Unicode word boundary on both ends of a match.
	WordBounded bool `json:"word_bounded" yaml:"word_bounded" mapstructure:"word_bounded"`
}

// RulePattern is a compiled RuleSpec.
type RulePattern struct {
	Spec RuleSpec
	re   *regexp.Regexp
}

// RuleSet is an ordered, immutable list of compiled rules. It is safe for
// concurrent use.
type RuleSet struct {
	patterns []*RulePattern
}

// ---------------------------------------------------------------------------
// Built-in rules
// ---------------------------------------------------------------------------

func bounded(name, pattern, typ string) RuleSpec {
	return RuleSpec{Name: name, Pattern: pattern, Type: typ, Confidence: RuleConfidence, WordBounded: true}
}

func loose(name, pattern, typ string) RuleSpec {
	return RuleSpec{Name: name, Pattern: pattern, Type: typ, Confidence: RuleConfidence}
}

// DefaultRuleSpecs returns the built-in Vietnamese agricultural rules. Order
// matters: multi-word crop, device and area rules come before the generic
// duration and date rules.
func DefaultRuleSpecs() []RuleSpec {
	return []RuleSpec{
		// crops
		bounded("crop_ca_chua", `cà\s+chua`, EntityTypeCrop),
		bounded("crop_ca_phe", `cà\s+phê`, EntityTypeCrop),
		bounded("crop_ca_rot", `cà\s+rốt`, EntityTypeCrop),
		bounded("crop_ca_tim", `cà\s+tím`, EntityTypeCrop),
		bounded("crop_khoai_lang", `khoai\s+lang`, EntityTypeCrop),
		bounded("crop_khoai_tay", `khoai\s+tây`, EntityTypeCrop),
		bounded("crop_khoai_mi", `khoai\s+mì`, EntityTypeCrop),
		bounded("crop_sau_rieng", `sầu\s+riêng`, EntityTypeCrop),
		bounded("crop_thanh_long", `thanh\s+long`, EntityTypeCrop),
		bounded("crop_ho_tieu", `hồ\s+tiêu`, EntityTypeCrop),
		bounded("crop_cao_su", `cao\s+su`, EntityTypeCrop),
		bounded("crop_dau_tuong", `đậu\s+tương`, EntityTypeCrop),
		bounded("crop_dau_phong", `đậu\s+phộng`, EntityTypeCrop),
		bounded("crop_bap_cai", `bắp\s+cải`, EntityTypeCrop),
		bounded("crop_rau_muong", `rau\s+muống`, EntityTypeCrop),
		bounded("crop_rau_den", `rau\s+dền`, EntityTypeCrop),
		bounded("crop_dua_chuot", `dưa\s+chuột`, EntityTypeCrop),
		bounded("crop_dua_hau", `dưa\s+hấu`, EntityTypeCrop),
		bounded("crop_su_su", `su\s+su`, EntityTypeCrop),
		bounded("crop_su_hao", `su\s+hào`, EntityTypeCrop),
		bounded("crop_cu_cai", `củ\s+cải`, EntityTypeCrop),

		// devices
		bounded("device_may_bom", `máy\s+bơm`, EntityTypeDevice),
		bounded("device_may_tuoi", `máy\s+tưới`, EntityTypeDevice),
		bounded("device_may_phun", `máy\s+phun`, EntityTypeDevice),
		bounded("device_van_nuoc", `van\s+nước`, EntityTypeDevice),
		bounded("device_cam_bien", `cảm\s+biến`, EntityTypeDevice),
		bounded("device_he_thong_tuoi", `hệ\s+thống\s+tưới`, EntityTypeDevice),

		// farm areas
		bounded("area_hang", `hàng\s+\d+`, EntityTypeArea),
		bounded("area_luong", `luống\s+\d+`, EntityTypeArea),
		bounded("area_khu_letter", `khu\s+[A-Z]`, EntityTypeArea),
		bounded("area_khu_number", `khu\s+\d+`, EntityTypeArea),
		bounded("area_vuon", `vườn\s+\w+`, EntityTypeArea),

		// durations
		loose("duration_minutes", `\d+\s*phút`, EntityTypeDuration),
		loose("duration_hours", `\d+\s*giờ`, EntityTypeDuration),
		loose("duration_days", `\d+\s*ngày`, EntityTypeDuration),
		loose("duration_half_hour", `nửa\s+tiếng`, EntityTypeDuration),
		loose("duration_hours_half", `\d+\s*tiếng\s*rưỡi`, EntityTypeDuration),

		// dates, most specific first
		loose("date_month_year", `tháng\s*\d{1,2}\s*năm\s*\d{4}`, EntityTypeDate),
		loose("date_month_last_year", `tháng\s*\d{1,2}\s*năm\s*(?:ngoái|trước)`, EntityTypeDate),
		loose("date_year", `năm\s*\d{4}`, EntityTypeDate),
		loose("date_this_year", `năm\s*(?:nay|này)`, EntityTypeDate),
		loose("date_last_year", `năm\s*(?:ngoái|trước)`, EntityTypeDate),
		loose("date_month", `tháng\s*\d{1,2}`, EntityTypeDate),
		loose("date_this_month", `tháng\s*(?:này|nay)`, EntityTypeDate),
		loose("date_last_month", `tháng\s*trước`, EntityTypeDate),
		loose("date_quarter", `quý\s*\d`, EntityTypeDate),
		loose("date_this_week", `tuần\s*(?:này|nay)`, EntityTypeDate),
		loose("date_last_week", `tuần\s*trước`, EntityTypeDate),
		loose("date_today", `hôm\s*nay`, EntityTypeDate),
		loose("date_yesterday", `hôm\s*qua`, EntityTypeDate),
		loose("date_dmy", `\d{1,2}/\d{1,2}/\d{2,4}`, EntityTypeDate),
	}
}

// ---------------------------------------------------------------------------
// Compilation
// ---------------------------------------------------------------------------

// unicodeClasses widens the Perl classes, which RE2 keeps ASCII-only, to their
// Unicode meaning. Patterns must not use these escapes inside brackets.
var unicodeClasses = strings.NewReplacer(
	`\s`, `[\s\p{Z}]`,
	`\d`, `\p{Nd}`,
	`\w`, `[\p{L}\p{N}\p{M}_]`,
)

// CompileRules compiles specs case-insensitively, preserving order.
func CompileRules(specs []RuleSpec) (*RuleSet, error) {
	patterns := make([]*RulePattern, 0, len(specs))
	for i, spec := range specs {
		if spec.Pattern == "" || spec.Type == "" {
			return nil, errors.New(errors.ErrCodeValidation, "rule needs pattern and type").
				WithDetail(fmt.Sprintf("rule %d (%s)", i, spec.Name))
		}
		if spec.Confidence <= 0 || spec.Confidence > 1 {
			spec.Confidence = RuleConfidence
		}
		re, err := regexp.Compile(`(?i)` + unicodeClasses.Replace(spec.Pattern))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid rule pattern").
				WithDetail(fmt.Sprintf("rule %d (%s)", i, spec.Name))
		}
		patterns = append(patterns, &RulePattern{Spec: spec, re: re})
	}
	return &RuleSet{patterns: patterns}, nil
}

// MustCompileRules is CompileRules that panics on error.
func MustCompileRules(specs []RuleSpec) *RuleSet {
	rs, err := CompileRules(specs)
	if err != nil {
		panic(err)
	}
	return rs
}

// DefaultRuleSet compiles DefaultRuleSpecs.
func DefaultRuleSet() *RuleSet {
	return MustCompileRules(DefaultRuleSpecs())
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int { return len(rs.patterns) }

// Specs returns the declarative form of every rule, in order.
func (rs *RuleSet) Specs() []RuleSpec {
	out := make([]RuleSpec, len(rs.patterns))
	for i, p := range rs.patterns {
		out[i] = p.Spec
	}
	return out
}

// ---------------------------------------------------------------------------
// Matching
// ---------------------------------------------------------------------------

// Extract runs every rule over text and returns all candidates: rules in
// order, matches of one rule left to right and non-overlapping. Candidates of
// different rules may overlap.
func (rs *RuleSet) Extract(text string) []*EntitySpan {
	return rs.extract(text, []rune(text))
}

func (rs *RuleSet) extract(text string, runes []rune) []*EntitySpan {
	if text == "" {
		return nil
	}
	idx := byteToRuneIndex(text)
	var out []*EntitySpan
	for _, p := range rs.patterns {
		for _, m := range p.findAll(text) {
			span, ok := newSpan(runes, p.Spec.Type, idx[m[0]], idx[m[1]], p.Spec.Confidence, SourceRule)
			if ok {
				out = append(out, span)
			}
		}
	}
	return out
}

// findAll returns byte ranges of non-empty matches, applying word boundaries
// when the rule asks for them.
func (p *RulePattern) findAll(text string) [][2]int {
	if !p.Spec.WordBounded {
		var out [][2]int
		for _, m := range p.re.FindAllStringIndex(text, -1) {
			if m[1] > m[0] {
				out = append(out, [2]int{m[0], m[1]})
			}
		}
		return out
	}

	var out [][2]int
	pos := 0
	for pos <= len(text) {
		loc := p.re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end > start && isWordBoundary(text, start) && isWordBoundary(text, end) {
			out = append(out, [2]int{start, end})
			pos = end
			continue
		}
		// retry one rune past the rejected start
		if start >= len(text) {
			break
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}

// isWordBoundary reports whether byte offset i in s sits between a word rune
// and a non-word rune (text edges count as non-word).
func isWordBoundary(s string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:i])
		before = isWordRune(r)
	}
	if i < len(s) {
		r, _ := utf8.DecodeRuneInString(s[i:])
		after = isWordRune(r)
	}
	return before != after
}

// byteToRuneIndex maps every byte offset of s (including len(s)) to the rune
// offset of the rune starting at or containing it.
func byteToRuneIndex(s string) []int {
	idx := make([]int, len(s)+1)
	r := 0
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		for j := 0; j < size; j++ {
			idx[i+j] = r
		}
		i += size
		r++
	}
	idx[len(s)] = r
	return idx
}

//Personal.AI order the ending
