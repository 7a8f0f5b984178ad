package agri_extractor

import (
	"strings"
	"unicode/utf8"
)

// FilterRule describes which raw strings are implausible for one entity type.
type FilterRule struct {
	// Blocklist holds lower-cased, trimmed raw strings to reject.
	Blocklist []string `json:"blocklist" yaml:"blocklist" mapstructure:"blocklist"`

	// RejectSingleRune drops spans whose normalised raw text is one character.
	RejectSingleRune bool `json:"reject_single_rune" yaml:"reject_single_rune" mapstructure:"reject_single_rune"`
}

// DefaultFilterRules returns the built-in false-positive rules: bare direction
// words misread as crops, and bare digits misread as farm areas.
func DefaultFilterRules() map[string]FilterRule {
	return map[string]FilterRule{
		EntityTypeCrop: {
			Blocklist:        []string{"nam", "bắc", "trung", "miền", "chua", "tây", "đông"},
			RejectSingleRune: true,
		},
		EntityTypeArea: {
			Blocklist: []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"},
		},
	}
}

type compiledFilter struct {
	blocked          map[string]struct{}
	rejectSingleRune bool
}

// EntityFilter drops known spurious spans. It is immutable once built.
type EntityFilter struct {
	rules map[string]compiledFilter
}

// NewEntityFilter builds a filter from per-type rules. Blocklist entries are
// normalised the same way span text is.
func NewEntityFilter(rules map[string]FilterRule) *EntityFilter {
	f := &EntityFilter{rules: make(map[string]compiledFilter, len(rules))}
	for typ, r := range rules {
		cf := compiledFilter{
			blocked:          make(map[string]struct{}, len(r.Blocklist)),
			rejectSingleRune: r.RejectSingleRune,
		}
		for _, w := range r.Blocklist {
			cf.blocked[normaliseRaw(w)] = struct{}{}
		}
		f.rules[typ] = cf
	}
	return f
}

// DefaultEntityFilter builds a filter from DefaultFilterRules.
func DefaultEntityFilter() *EntityFilter {
	return NewEntityFilter(DefaultFilterRules())
}

// Reject reports whether span should be dropped.
func (f *EntityFilter) Reject(span *EntitySpan) bool {
	r, ok := f.rules[span.Type]
	if !ok {
		return false
	}
	key := normaliseRaw(span.Raw)
	if _, blocked := r.blocked[key]; blocked {
		return true
	}
	return r.rejectSingleRune && utf8.RuneCountInString(key) == 1
}

// Filter returns the spans that survive, in order.
func (f *EntityFilter) Filter(spans []*EntitySpan) []*EntitySpan {
	out := make([]*EntitySpan, 0, len(spans))
	for _, s := range spans {
		if !f.Reject(s) {
			out = append(out, s)
		}
	}
	return out
}

func normaliseRaw(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

//Personal.AI order the ending
