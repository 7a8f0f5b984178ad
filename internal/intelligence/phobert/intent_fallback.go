package phobert

import (
	"context"
	"strings"

	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
)

// MinIntentConfidence is the model confidence below which the keyword
// classifier answers instead.
const MinIntentConfidence = 0.3

// keywordRule assigns an intent when any keyword is a substring of the
// lower-cased text. Rules are checked in order.
type keywordRule struct {
	intent   string
	keywords []string
}

var defaultKeywordRules = []keywordRule{
	{common.IntentFinancialQuery, []string{"doanh thu", "thu nhập", "lợi nhuận", "chi phí", "tiền", "giá", "bao nhiêu tiền", "tổng tiền", "giá trị"}},
	{common.IntentDeviceControl, []string{"bật", "tắt", "điều khiển", "control", "máy", "thiết bị", "hệ thống"}},
	{common.IntentSensorQuery, []string{"nhiệt độ", "độ ẩm", "cảm biến", "sensor", "đo", "giám sát"}},
}

// KeywordIntentClassifier is the deterministic intent fallback used when no
// model is loaded, the model fails or its answer is not confident enough.
type KeywordIntentClassifier struct {
	rules []keywordRule
}

// NewKeywordIntentClassifier returns the classifier with the built-in
// keyword table.
func NewKeywordIntentClassifier() *KeywordIntentClassifier {
	return &KeywordIntentClassifier{rules: defaultKeywordRules}
}

// ClassifyIntent never fails. A keyword hit scores 0.9; otherwise the text is
// a knowledge query at 0.7. Two fixed alternatives follow the winner.
func (k *KeywordIntentClassifier) ClassifyIntent(_ context.Context, text string, topK int) (*common.IntentPrediction, error) {
	lower := strings.ToLower(text)
	intent, confidence := common.IntentKnowledgeQuery, 0.7
	for _, r := range k.rules {
		if containsAny(lower, r.keywords) {
			intent, confidence = r.intent, 0.9
			break
		}
	}

	ranked := []common.IntentScore{
		{Intent: intent, Confidence: confidence},
		{Intent: common.IntentKnowledgeQuery, Confidence: 0.2},
		{Intent: common.IntentFinancialQuery, Confidence: 0.1},
	}
	if topK > 0 && topK < len(ranked) {
		ranked = ranked[:topK]
	}
	return &common.IntentPrediction{Intent: intent, Confidence: confidence, Ranked: ranked}, nil
}

func (k *KeywordIntentClassifier) Healthy(context.Context) error { return nil }
func (k *KeywordIntentClassifier) Close() error                  { return nil }

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// FallbackIntentClassifier asks the model first and answers with the keyword
// classifier when the model errors or is below MinIntentConfidence.
type FallbackIntentClassifier struct {
	primary  common.IntentClassifier
	fallback *KeywordIntentClassifier
	minConf  float64
	logger   common.Logger
	observe  func(reason string)
}

// Fallback reasons reported to the observer.
const (
	FallbackNoModel       = "no_model"
	FallbackModelError    = "model_error"
	FallbackLowConfidence = "low_confidence"
)

// NewFallbackIntentClassifier wraps primary. A nil primary answers from
// keywords only.
func NewFallbackIntentClassifier(primary common.IntentClassifier, logger common.Logger) *FallbackIntentClassifier {
	if logger == nil {
		logger = common.NewNoopLogger()
	}
	return &FallbackIntentClassifier{
		primary:  primary,
		fallback: NewKeywordIntentClassifier(),
		minConf:  MinIntentConfidence,
		logger:   logger,
		observe:  func(string) {},
	}
}

// OnFallback registers fn to be called with the reason every time the
// keyword classifier answers.
func (f *FallbackIntentClassifier) OnFallback(fn func(reason string)) *FallbackIntentClassifier {
	if fn != nil {
		f.observe = fn
	}
	return f
}

func (f *FallbackIntentClassifier) ClassifyIntent(ctx context.Context, text string, topK int) (*common.IntentPrediction, error) {
	if f.primary == nil {
		f.observe(FallbackNoModel)
		return f.fallback.ClassifyIntent(ctx, text, topK)
	}
	pred, err := f.primary.ClassifyIntent(ctx, text, topK)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		f.logger.Warn("intent model failed, using keyword fallback", "error", err)
		f.observe(FallbackModelError)
		return f.fallback.ClassifyIntent(ctx, text, topK)
	}
	if pred.Confidence < f.minConf {
		f.logger.Warn("low intent confidence, using keyword fallback", "intent", pred.Intent, "confidence", pred.Confidence)
		f.observe(FallbackLowConfidence)
		return f.fallback.ClassifyIntent(ctx, text, topK)
	}
	return pred, nil
}

func (f *FallbackIntentClassifier) Healthy(ctx context.Context) error {
	if f.primary == nil {
		return nil
	}
	return f.primary.Healthy(ctx)
}

func (f *FallbackIntentClassifier) Close() error {
	if f.primary == nil {
		return nil
	}
	return f.primary.Close()
}

var (
	_ common.IntentClassifier = (*KeywordIntentClassifier)(nil)
	_ common.IntentClassifier = (*FallbackIntentClassifier)(nil)
)

//Personal.AI order the ending
