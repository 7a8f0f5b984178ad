package agri_extractor

import (
	"testing"
	"unicode/utf8"

	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
)

func FuzzEngineDecode(f *testing.F) {
	f.Add("trồng cà chua ở khu A", []byte{0, 3, 4, 0, 5, 6}, true)
	f.Add("trồng cà chua ở khu A", []byte{4, 4, 0, 6}, false)
	f.Add("", []byte{}, true)
	f.Add("hôm nay tưới máy bơm 15 phút ở luống 3", []byte{1, 2, 7, 8, 11, 12, 0, 5, 6}, false)
	f.Add("cà cà cà chua chua", []byte{3, 4, 4, 3}, false)
	f.Add("tháng 11 năm 2024 vườn cam 2 tỷ", []byte{1, 2, 2, 2, 5, 6}, true)

	engine := NewEngine()
	vocabSize := engine.Vocabulary().Len()

	f.Fuzz(func(t *testing.T, text string, labels []byte, withOffsets bool) {
		if !utf8.ValidString(text) {
			return
		}
		tokens := whitespaceTokens(text, labels, vocabSize)
		tc := &common.TokenClassification{Tokens: tokens, HasOffsets: withOffsets}

		spans := engine.Decode(text, tc)
		assertSpanInvariants(t, text, spans)

		again := engine.Decode(text, tc)
		if len(again) != len(spans) {
			t.Fatalf("decode not deterministic: %d vs %d spans", len(spans), len(again))
		}
		for i := range spans {
			if *spans[i] != *again[i] {
				t.Fatalf("decode not deterministic at %d: %+v vs %+v", i, spans[i], again[i])
			}
		}

		resolved := ResolveOverlaps(spans)
		if len(resolved) != len(spans) {
			t.Fatalf("resolver not idempotent: %d vs %d spans", len(spans), len(resolved))
		}
	})
}

//Personal.AI order the ending
