package phobert

import "unicode/utf8"

// runeOffsets maps byte offsets of a string to rune offsets.
type runeOffsets struct {
	// table[b] is the rune index of the first rune starting at or after b.
	table []int
}

func newRuneOffsets(text string) runeOffsets {
	table := make([]int, len(text)+1)
	r := 0
	for b := 0; b < len(text); {
		_, size := utf8.DecodeRuneInString(text[b:])
		table[b] = r
		for k := 1; k < size; k++ {
			table[b+k] = r + 1
		}
		b += size
		r++
	}
	table[len(text)] = r
	return runeOffsets{table: table}
}

// rune converts a byte offset. An offset inside a multi-byte rune rounds up
// to the next rune boundary. Offsets outside the text stay outside it, so
// span construction rejects them.
func (o runeOffsets) rune(b int) int {
	last := len(o.table) - 1
	switch {
	case b < 0:
		return b
	case b > last:
		return o.table[last] + b - last
	}
	return o.table[b]
}

//Personal.AI order the ending
