package agri_extractor

import (
	"strings"
	"unicode"

	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
)

// WordBoundaryMarker is the sub-word prefix PhoBERT's tokenizer writes in
// place of a space.
const WordBoundaryMarker = "_"

// Reconstruction is the result of aligning offset-less tokens to text.
type Reconstruction struct {
	Spans []*EntitySpan

	// Unmatched counts non-special, non-empty tokens that could not be found
	// ahead of the cursor.
	Unmatched int
}

// Reconstruct recovers rune spans for tokens that carry no offsets by
// searching each token's text forward from a cursor, then applies the BIO
// machine with orphan recovery. Matching never backtracks: a token that is
// not found is skipped and the cursor stays put.
func Reconstruct(text string, tc *common.TokenClassification, vocab *LabelVocabulary) Reconstruction {
	return reconstruct([]rune(text), tc, vocab)
}

func reconstruct(runes []rune, tc *common.TokenClassification, vocab *LabelVocabulary) Reconstruction {
	lower := lowerRunes(runes)
	m := newBIOMachine(runes, vocab, OrphanRecover)
	cursor := 0
	unmatched := 0

	for _, tok := range tc.Tokens {
		if tc.IsSpecial(tok.ID) {
			continue
		}
		tokenText := strings.TrimSpace(tok.Text)
		if tokenText == "" {
			continue
		}
		clean := strings.TrimSpace(strings.ReplaceAll(tokenText, WordBoundaryMarker, " "))
		if clean == "" {
			// a bare marker token has nothing to align
			continue
		}

		candidate := lowerRunes([]rune(clean))
		start := indexRunes(lower, candidate, cursor)
		if start < 0 {
			candidate = lowerRunes([]rune(strings.ReplaceAll(clean, " ", "")))
			start = indexRunes(lower, candidate, cursor)
		}
		if start < 0 {
			unmatched++
			continue
		}

		end := start + len(candidate)
		cursor = end
		m.step(vocab.Tag(tok.LabelID), start, end)
	}

	return Reconstruction{Spans: m.finish(), Unmatched: unmatched}
}

// lowerRunes lower-cases rune by rune so indexes stay aligned with the source.
func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

// indexRunes returns the first index >= from at which needle occurs in
// haystack, or -1.
func indexRunes(haystack, needle []rune, from int) int {
	if from < 0 {
		from = 0
	}
	n := len(needle)
	if n == 0 {
		if from <= len(haystack) {
			return from
		}
		return -1
	}
	for i := from; i+n <= len(haystack); i++ {
		if haystack[i] != needle[0] {
			continue
		}
		match := true
		for j := 1; j < n; j++ {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

//Personal.AI order the ending
