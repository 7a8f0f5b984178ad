package agri_extractor

import (
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
)

const (
	// BeginConfidence is the base confidence of a model span opened by a B- tag.
	BeginConfidence = 0.85

	// OrphanConfidence is assigned to spans opened by an I- tag with nothing
	// open, which only the offset-less path accepts.
	OrphanConfidence = 0.75
)

// OrphanPolicy decides what an I- tag does when no entity is open.
type OrphanPolicy uint8

const (
	// OrphanDrop ignores the tag.
	OrphanDrop OrphanPolicy = iota
	// OrphanRecover opens a new entity at OrphanConfidence.
	OrphanRecover
)

// ---------------------------------------------------------------------------
// BIO state machine
// ---------------------------------------------------------------------------

// bioMachine accumulates spans from a stream of (tag, start, end) steps.
type bioMachine struct {
	runes  []rune
	vocab  *LabelVocabulary
	policy OrphanPolicy

	open *EntitySpan
	out  []*EntitySpan
}

func newBIOMachine(runes []rune, vocab *LabelVocabulary, policy OrphanPolicy) *bioMachine {
	return &bioMachine{runes: runes, vocab: vocab, policy: policy}
}

func (m *bioMachine) step(tag Tag, start, end int) {
	switch tag.Kind {
	case TagBegin:
		m.close()
		m.begin(tag, start, end, BeginConfidence)
	case TagInside:
		if m.open != nil {
			// An extension that would break the span is ignored; the entity stays open.
			extendSpan(m.runes, m.open, end)
			return
		}
		if m.policy == OrphanRecover {
			m.begin(tag, start, end, OrphanConfidence)
		}
	case TagOutside:
		m.close()
	}
}

func (m *bioMachine) begin(tag Tag, start, end int, confidence float64) {
	span, ok := newSpan(m.runes, m.vocab.DisplayType(tag.Suffix), start, end, confidence, SourceModel)
	if !ok {
		return
	}
	m.open = span
}

func (m *bioMachine) close() {
	if m.open != nil {
		m.out = append(m.out, m.open)
		m.open = nil
	}
}

func (m *bioMachine) finish() []*EntitySpan {
	m.close()
	return m.out
}

// ---------------------------------------------------------------------------
// Offset-based decoding
// ---------------------------------------------------------------------------

// DecodeWithOffsets turns tokens carrying rune offsets into spans. Tokens with
// Start == End are structural and skipped. Orphan I- tags are dropped.
func DecodeWithOffsets(text string, tokens []common.Token, vocab *LabelVocabulary) []*EntitySpan {
	return decodeWithOffsets([]rune(text), tokens, vocab)
}

func decodeWithOffsets(runes []rune, tokens []common.Token, vocab *LabelVocabulary) []*EntitySpan {
	m := newBIOMachine(runes, vocab, OrphanDrop)
	for _, tok := range tokens {
		if tok.Start == tok.End {
			continue
		}
		m.step(vocab.Tag(tok.LabelID), tok.Start, tok.End)
	}
	return m.finish()
}

//Personal.AI order the ending
