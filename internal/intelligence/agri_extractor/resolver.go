package agri_extractor

import (
	"sort"
)

// ResolveOverlaps selects a non-overlapping subset of spans. Candidates are
// ordered by start ascending, confidence descending, then length descending,
// and swept greedily: a candidate is kept when it starts at or after the end
// of the last kept span. The result is sorted by start. The input slice is not
// reordered.
func ResolveOverlaps(spans []*EntitySpan) []*EntitySpan {
	if len(spans) == 0 {
		return []*EntitySpan{}
	}

	sorted := make([]*EntitySpan, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Len() > b.Len()
	})

	out := make([]*EntitySpan, 0, len(sorted))
	lastEnd := -1
	for _, s := range sorted {
		if s.Start >= lastEnd {
			out = append(out, s)
			lastEnd = s.End
		}
	}
	return out
}

// MergeSpans concatenates model and rule candidates and resolves overlaps.
func MergeSpans(model, rules []*EntitySpan) []*EntitySpan {
	all := make([]*EntitySpan, 0, len(model)+len(rules))
	all = append(all, model...)
	all = append(all, rules...)
	return ResolveOverlaps(all)
}

//Personal.AI order the ending
