package phobert

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
)

type stubIntentClassifier struct {
	pred   *common.IntentPrediction
	err    error
	calls  int
	closed bool
}

func (s *stubIntentClassifier) ClassifyIntent(ctx context.Context, _ string, _ int) (*common.IntentPrediction, error) {
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.pred, s.err
}

func (s *stubIntentClassifier) Healthy(context.Context) error { return s.err }

func (s *stubIntentClassifier) Close() error {
	s.closed = true
	return nil
}

func TestKeywordIntentClassifier(t *testing.T) {
	k := NewKeywordIntentClassifier()
	cases := []struct {
		text       string
		intent     string
		confidence float64
	}{
		{"Doanh thu vụ này bao nhiêu?", common.IntentFinancialQuery, 0.9},
		{"Bật máy bơm khu A", common.IntentDeviceControl, 0.9},
		{"nhiệt độ nhà kính hiện tại", common.IntentSensorQuery, 0.9},
		{"cách bón phân cho lúa", common.IntentKnowledgeQuery, 0.7},
		// financial keywords win over device keywords
		{"giá máy cày", common.IntentFinancialQuery, 0.9},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			pred, err := k.ClassifyIntent(context.Background(), tc.text, 3)
			require.NoError(t, err)
			assert.Equal(t, tc.intent, pred.Intent)
			assert.Equal(t, tc.confidence, pred.Confidence)
			require.Len(t, pred.Ranked, 3)
			assert.Equal(t, tc.intent, pred.Ranked[0].Intent)
		})
	}

	pred, err := k.ClassifyIntent(context.Background(), "tắt đèn", 1)
	require.NoError(t, err)
	assert.Len(t, pred.Ranked, 1)
}

func TestFallbackIntentClassifier(t *testing.T) {
	ctx := context.Background()

	t.Run("confident model answer is kept", func(t *testing.T) {
		stub := &stubIntentClassifier{pred: &common.IntentPrediction{Intent: common.IntentSensorQuery, Confidence: 0.8}}
		pred, err := NewFallbackIntentClassifier(stub, nil).ClassifyIntent(ctx, "bật máy bơm", 3)
		require.NoError(t, err)
		assert.Equal(t, common.IntentSensorQuery, pred.Intent)
	})

	t.Run("low confidence uses keywords", func(t *testing.T) {
		stub := &stubIntentClassifier{pred: &common.IntentPrediction{Intent: common.IntentSensorQuery, Confidence: 0.2}}
		pred, err := NewFallbackIntentClassifier(stub, nil).ClassifyIntent(ctx, "bật máy bơm", 3)
		require.NoError(t, err)
		assert.Equal(t, common.IntentDeviceControl, pred.Intent)
		assert.Equal(t, 0.9, pred.Confidence)
	})

	t.Run("model error uses keywords", func(t *testing.T) {
		stub := &stubIntentClassifier{err: errors.New("boom")}
		f := NewFallbackIntentClassifier(stub, nil)
		pred, err := f.ClassifyIntent(ctx, "lợi nhuận tháng này", 3)
		require.NoError(t, err)
		assert.Equal(t, common.IntentFinancialQuery, pred.Intent)
		assert.Error(t, f.Healthy(ctx))
	})

	t.Run("cancelled context is not masked", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		stub := &stubIntentClassifier{}
		_, err := NewFallbackIntentClassifier(stub, nil).ClassifyIntent(cctx, "x", 3)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("nil primary", func(t *testing.T) {
		f := NewFallbackIntentClassifier(nil, nil)
		pred, err := f.ClassifyIntent(ctx, "độ ẩm đất", 3)
		require.NoError(t, err)
		assert.Equal(t, common.IntentSensorQuery, pred.Intent)
		assert.NoError(t, f.Healthy(ctx))
		assert.NoError(t, f.Close())
	})

	t.Run("close reaches primary", func(t *testing.T) {
		stub := &stubIntentClassifier{}
		require.NoError(t, NewFallbackIntentClassifier(stub, nil).Close())
		assert.True(t, stub.closed)
	})

	t.Run("observer sees each reason", func(t *testing.T) {
		var reasons []string
		record := func(r string) { reasons = append(reasons, r) }

		_, _ = NewFallbackIntentClassifier(nil, nil).OnFallback(record).ClassifyIntent(ctx, "x", 1)
		_, _ = NewFallbackIntentClassifier(&stubIntentClassifier{err: errors.New("boom")}, nil).
			OnFallback(record).ClassifyIntent(ctx, "x", 1)
		_, _ = NewFallbackIntentClassifier(&stubIntentClassifier{pred: &common.IntentPrediction{Confidence: 0.1}}, nil).
			OnFallback(record).ClassifyIntent(ctx, "x", 1)
		_, _ = NewFallbackIntentClassifier(&stubIntentClassifier{pred: &common.IntentPrediction{Confidence: 0.9}}, nil).
			OnFallback(record).ClassifyIntent(ctx, "x", 1)

		assert.Equal(t, []string{FallbackNoModel, FallbackModelError, FallbackLowConfidence}, reasons)
	})
}

//Personal.AI order the ending
