package agri_extractor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
)

// label ids of DefaultLabels
const (
	lblO         = 0
	lblBDate     = 1
	lblIDate     = 2
	lblBCrop     = 3
	lblICrop     = 4
	lblBArea     = 5
	lblIArea     = 6
	lblBDevice   = 7
	lblIDevice   = 8
	lblBMetric   = 9
	lblIMetric   = 10
	lblBDuration = 11
	lblIDuration = 12
)

const (
	bosID = 0
	eosID = 2
	padID = 1
)

// offsetTok builds a token whose offsets locate word inside text, searching
// from rune offset from. It fails the test when word is absent.
func offsetTok(t *testing.T, text, word string, from, label int) common.Token {
	t.Helper()
	runes := []rune(text)
	w := []rune(word)
	start := indexRunes(runes, w, from)
	require.GreaterOrEqual(t, start, 0, "word %q not found in %q", word, text)
	return common.Token{ID: 100 + start, Text: word, LabelID: label, Start: start, End: start + len(w)}
}

// specialTok mimics the (0, 0) offsets tokenizers report for <s> and </s>.
func specialTok(id int) common.Token {
	return common.Token{ID: id, Text: "", LabelID: lblO}
}

// textTok builds an offset-less token.
func textTok(id int, text string, label int) common.Token {
	return common.Token{ID: id, Text: text, LabelID: label}
}

// offsetless wraps tokens between bos and eos markers.
func offsetless(tokens ...common.Token) *common.TokenClassification {
	all := make([]common.Token, 0, len(tokens)+2)
	all = append(all, textTok(bosID, "<s>", lblO))
	all = append(all, tokens...)
	all = append(all, textTok(eosID, "</s>", lblO))
	return &common.TokenClassification{
		Tokens:          all,
		HasOffsets:      false,
		SpecialTokenIDs: []int{bosID, eosID, padID},
	}
}

// assertSpanInvariants checks raw/offset agreement, ordering and overlap.
func assertSpanInvariants(t *testing.T, text string, spans []*EntitySpan) {
	t.Helper()
	runes := []rune(text)
	for i, s := range spans {
		require.GreaterOrEqual(t, s.Start, 0)
		require.LessOrEqual(t, s.Start, s.End)
		require.LessOrEqual(t, s.End, len(runes))
		require.Equal(t, string(runes[s.Start:s.End]), s.Raw, "span %d", i)
		if i > 0 {
			require.LessOrEqual(t, spans[i-1].End, s.Start, "spans %d and %d overlap", i-1, i)
		}
	}
}

func spanTypes(spans []*EntitySpan) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Type
	}
	return out
}

func spanRaws(spans []*EntitySpan) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Raw
	}
	return out
}

// whitespaceTokens splits text on spaces into offset tokens, labelling the
// i-th word with labels[i % len(labels)].
func whitespaceTokens(text string, labels []byte, vocabSize int) []common.Token {
	var out []common.Token
	runes := []rune(text)
	i, n := 0, 0
	for i < len(runes) {
		for i < len(runes) && runes[i] == ' ' {
			i++
		}
		start := i
		for i < len(runes) && runes[i] != ' ' {
			i++
		}
		if i == start {
			break
		}
		label := 0
		if len(labels) > 0 {
			label = int(labels[n%len(labels)]) % (vocabSize + 2) // may exceed the vocabulary
		}
		out = append(out, common.Token{ID: 100 + n, Text: strings.ToLower(string(runes[start:i])), LabelID: label, Start: start, End: i})
		n++
	}
	return out
}

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type MockTokenClassifier struct {
	mock.Mock
}

func (m *MockTokenClassifier) Classify(ctx context.Context, text string) (*common.TokenClassification, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*common.TokenClassification), args.Error(1)
}

func (m *MockTokenClassifier) Healthy(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockTokenClassifier) Close() error {
	return m.Called().Error(0)
}

type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordExtraction(ctx context.Context, path string, entityCount int, durationMs float64) {
	m.Called(ctx, path, entityCount, durationMs)
}

func (m *MockMetrics) RecordEntity(ctx context.Context, entityType, source string) {
	m.Called(ctx, entityType, source)
}

func (m *MockMetrics) RecordModelFailure(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockMetrics) RecordUnmatchedTokens(ctx context.Context, n int) {
	m.Called(ctx, n)
}

//Personal.AI order the ending
