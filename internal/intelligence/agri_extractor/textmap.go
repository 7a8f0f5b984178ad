package agri_extractor

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// runeMap relates the runes of an NFC-normalised text to the runes of the
// input it came from. Normalised rune i was produced by the input segment
// [starts[i], ends[i]).
type runeMap struct {
	starts []int
	ends   []int
	input  []rune
}

// normalizeNFC returns text in NFC and the map back to text. The map is nil
// when text is already normalised.
func normalizeNFC(text string) (string, *runeMap) {
	if norm.NFC.IsNormalString(text) {
		return text, nil
	}
	var (
		it norm.Iter
		b  strings.Builder
		in int
	)
	m := &runeMap{input: []rune(text)}
	b.Grow(len(text))
	it.InitString(norm.NFC, text)
	for !it.Done() {
		from := it.Pos()
		seg := it.Next()
		end := in + utf8.RuneCountInString(text[from:it.Pos()])
		for n := utf8.RuneCount(seg); n > 0; n-- {
			m.starts = append(m.starts, in)
			m.ends = append(m.ends, end)
		}
		b.Write(seg)
		in = end
	}
	return b.String(), m
}

// remap moves spans from normalised offsets to input offsets and takes Raw
// from the input. Spans are widened to whole segments; one that would then
// overlap its predecessor is dropped. Values are left as computed.
func (m *runeMap) remap(spans []*EntitySpan) []*EntitySpan {
	if m == nil {
		return spans
	}
	out := spans[:0]
	last := -1
	for _, s := range spans {
		if s.Start < 0 || s.End > len(m.starts) || s.Start >= s.End {
			continue
		}
		start, end := m.starts[s.Start], m.ends[s.End-1]
		if start < last {
			continue
		}
		s.Start, s.End = start, end
		s.Raw = string(m.input[start:end])
		out = append(out, s)
		last = end
	}
	return out
}

//Personal.AI order the ending
