package phobert

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/turtacn/AgriBot-NLU/internal/intelligence/agri_extractor"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// Backend names recorded in metrics and logs.
const (
	BackendHugot   = "hugot"
	BackendSidecar = "sidecar"
)

// ---------------------------------------------------------------------------
// Pipelines
// ---------------------------------------------------------------------------

// tokenPipeline is the subset of the hugot token classification pipeline the
// classifier needs.
type tokenPipeline interface {
	RunPipeline(inputs []string) (*pipelines.TokenClassificationOutput, error)
}

// textPipeline is the subset of the hugot text classification pipeline the
// intent classifier needs.
type textPipeline interface {
	RunPipeline(inputs []string) (*pipelines.TextClassificationOutput, error)
}

// HugotConfig locates one exported ONNX model directory.
type HugotConfig struct {
	// Name identifies the pipeline inside the session and in metrics.
	Name string `mapstructure:"name" yaml:"name" json:"name"`

	// ModelPath is the directory holding model.onnx and tokenizer.json.
	ModelPath string `mapstructure:"model_path" yaml:"model_path" json:"model_path"`

	// Version is reported with load metrics.
	Version string `mapstructure:"version" yaml:"version" json:"version"`
}

// Session owns one hugot session shared by the token and intent pipelines.
type Session struct {
	mu      sync.Mutex
	session *hugot.Session
	closed  bool
}

// NewSession creates a pure-Go hugot session.
func NewSession() (*Session, error) {
	s, err := hugot.NewGoSession()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelNotAvailable, "failed to create hugot session")
	}
	return &Session{session: s}, nil
}

// Close destroys the session and every pipeline created from it.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.session.Destroy()
}

// ---------------------------------------------------------------------------
// HugotTokenClassifier
// ---------------------------------------------------------------------------

// HugotTokenClassifier runs the fine-tuned PhoBERT NER model in process. The
// pipeline is built without aggregation and with no ignored labels so every
// sub-word token keeps its own BIO label, including O.
type HugotTokenClassifier struct {
	name     string
	pipeline tokenPipeline
	vocab    *agri_extractor.LabelVocabulary
	metrics  common.ModelMetrics
	logger   common.Logger
	mu       sync.Mutex
}

// NewHugotTokenClassifier loads the token classification pipeline from
// cfg.ModelPath into session.
func NewHugotTokenClassifier(session *Session, cfg HugotConfig, vocab *agri_extractor.LabelVocabulary, metrics common.ModelMetrics, logger common.Logger) (*HugotTokenClassifier, error) {
	if session == nil {
		return nil, errors.New(errors.ErrCodeModelNotAvailable, "hugot session is required")
	}
	if cfg.ModelPath == "" {
		return nil, errors.New(errors.ErrCodeValidation, "model path is required")
	}
	if cfg.Name == "" {
		cfg.Name = "phobert-ner"
	}
	if metrics == nil {
		metrics = common.NewNoopModelMetrics()
	}

	start := time.Now()
	p, err := hugot.NewPipeline(session.session, hugot.TokenClassificationConfig{
		ModelPath: cfg.ModelPath,
		Name:      cfg.Name,
		Options: []hugot.TokenClassificationOption{
			pipelines.WithoutAggregation(),
			pipelines.WithIgnoreLabels([]string{}),
		},
	})
	metrics.RecordModelLoad(context.Background(), cfg.Name, cfg.Version, msSince(start), err == nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelNotAvailable, "failed to load token classification pipeline").
			WithDetail(cfg.ModelPath)
	}
	return newHugotTokenClassifier(cfg.Name, p, vocab, metrics, logger), nil
}

func newHugotTokenClassifier(name string, p tokenPipeline, vocab *agri_extractor.LabelVocabulary, metrics common.ModelMetrics, logger common.Logger) *HugotTokenClassifier {
	if vocab == nil {
		vocab = agri_extractor.DefaultLabelVocabulary()
	}
	if metrics == nil {
		metrics = common.NewNoopModelMetrics()
	}
	if logger == nil {
		logger = common.NewNoopLogger()
	}
	return &HugotTokenClassifier{
		name:     name,
		pipeline: p,
		vocab:    vocab,
		metrics:  metrics,
		logger:   logger,
	}
}

// Classify runs the pipeline on text. Offsets are converted from bytes to
// runes; labels are resolved against the vocabulary and unknown labels map
// to -1, which the decoder treats as Outside.
func (c *HugotTokenClassifier) Classify(ctx context.Context, text string) (*common.TokenClassification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	c.mu.Lock()
	out, err := c.pipeline.RunPipeline([]string{text})
	c.mu.Unlock()

	params := &common.InferenceMetricParams{
		ModelName:  c.name,
		Backend:    BackendHugot,
		TaskType:   common.TaskTokenClassification,
		DurationMs: msSince(start),
		HasOffsets: true,
	}
	if err != nil {
		c.metrics.RecordInference(ctx, params)
		return nil, errors.Wrap(err, errors.ErrCodeInferenceFailed, "token classification failed")
	}
	if out == nil || len(out.Entities) == 0 {
		c.metrics.RecordInference(ctx, params)
		return nil, errors.New(errors.ErrCodeInferenceFailed, "token classification returned no output")
	}

	offsets := newRuneOffsets(text)
	tokens := make([]common.Token, 0, len(out.Entities[0]))
	for _, e := range out.Entities[0] {
		id, ok := c.vocab.ID(e.Entity)
		if !ok {
			c.logger.Debug("unknown model label", "label", e.Entity)
			id = -1
		}
		tokens = append(tokens, common.Token{
			ID:      e.Index,
			Text:    e.Word,
			LabelID: id,
			Score:   float64(e.Score),
			Start:   offsets.rune(int(e.Start)),
			End:     offsets.rune(int(e.End)),
		})
	}

	params.Success = true
	params.InputTokens = len(tokens)
	c.metrics.RecordInference(ctx, params)

	return &common.TokenClassification{
		Tokens:     tokens,
		HasOffsets: true,
		ModelName:  c.name,
	}, nil
}

// Healthy reports whether the pipeline is loaded.
func (c *HugotTokenClassifier) Healthy(context.Context) error {
	if c.pipeline == nil {
		return common.ErrModelNotLoaded
	}
	return nil
}

// Close is a no-op; the owning Session releases the pipeline.
func (c *HugotTokenClassifier) Close() error { return nil }

// ---------------------------------------------------------------------------
// HugotIntentClassifier
// ---------------------------------------------------------------------------

// HugotIntentClassifier ranks chatbot intents with the fine-tuned PhoBERT
// sequence classifier.
type HugotIntentClassifier struct {
	name     string
	pipeline textPipeline
	labels   []string
	metrics  common.ModelMetrics
	mu       sync.Mutex
}

// NewHugotIntentClassifier loads the text classification pipeline. labels
// maps generic model labels ("LABEL_2") to intent names by index; nil uses
// common.DefaultIntentLabels.
func NewHugotIntentClassifier(session *Session, cfg HugotConfig, labels []string, metrics common.ModelMetrics) (*HugotIntentClassifier, error) {
	if session == nil {
		return nil, errors.New(errors.ErrCodeModelNotAvailable, "hugot session is required")
	}
	if cfg.ModelPath == "" {
		return nil, errors.New(errors.ErrCodeValidation, "model path is required")
	}
	if cfg.Name == "" {
		cfg.Name = "phobert-intent"
	}
	if metrics == nil {
		metrics = common.NewNoopModelMetrics()
	}

	start := time.Now()
	p, err := hugot.NewPipeline(session.session, hugot.TextClassificationConfig{
		ModelPath: cfg.ModelPath,
		Name:      cfg.Name,
		Options: []hugot.TextClassificationOption{
			pipelines.WithSoftmax(),
			pipelines.WithMultiLabel(),
		},
	})
	metrics.RecordModelLoad(context.Background(), cfg.Name, cfg.Version, msSince(start), err == nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelNotAvailable, "failed to load intent classification pipeline").
			WithDetail(cfg.ModelPath)
	}
	return newHugotIntentClassifier(cfg.Name, p, labels, metrics), nil
}

func newHugotIntentClassifier(name string, p textPipeline, labels []string, metrics common.ModelMetrics) *HugotIntentClassifier {
	if len(labels) == 0 {
		labels = common.DefaultIntentLabels
	}
	if metrics == nil {
		metrics = common.NewNoopModelMetrics()
	}
	return &HugotIntentClassifier{
		name:     name,
		pipeline: p,
		labels:   labels,
		metrics:  metrics,
	}
}

// ClassifyIntent returns the topK intents by descending probability. topK is
// clamped to [1, number of labels].
func (c *HugotIntentClassifier) ClassifyIntent(ctx context.Context, text string, topK int) (*common.IntentPrediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	c.mu.Lock()
	out, err := c.pipeline.RunPipeline([]string{text})
	c.mu.Unlock()

	params := &common.InferenceMetricParams{
		ModelName:  c.name,
		Backend:    BackendHugot,
		TaskType:   common.TaskIntentClassification,
		DurationMs: msSince(start),
	}
	if err != nil {
		c.metrics.RecordInference(ctx, params)
		return nil, errors.Wrap(err, errors.ErrCodeInferenceFailed, "intent classification failed")
	}
	if out == nil || len(out.ClassificationOutputs) == 0 || len(out.ClassificationOutputs[0]) == 0 {
		c.metrics.RecordInference(ctx, params)
		return nil, errors.New(errors.ErrCodeInferenceFailed, "intent classification returned no output")
	}

	ranked := make([]common.IntentScore, 0, len(out.ClassificationOutputs[0]))
	for _, o := range out.ClassificationOutputs[0] {
		ranked = append(ranked, common.IntentScore{
			Intent:     c.intentName(o.Label),
			Confidence: float64(o.Score),
		})
	}
	params.Success = true
	c.metrics.RecordInference(ctx, params)

	return rankIntents(ranked, topK), nil
}

// intentName resolves "LABEL_n" style labels through the configured list.
func (c *HugotIntentClassifier) intentName(label string) string {
	if idx, ok := strings.CutPrefix(label, "LABEL_"); ok {
		if n, err := strconv.Atoi(idx); err == nil && n >= 0 && n < len(c.labels) {
			return c.labels[n]
		}
	}
	return label
}

// Healthy reports whether the pipeline is loaded.
func (c *HugotIntentClassifier) Healthy(context.Context) error {
	if c.pipeline == nil {
		return common.ErrModelNotLoaded
	}
	return nil
}

// Close is a no-op; the owning Session releases the pipeline.
func (c *HugotIntentClassifier) Close() error { return nil }

// rankIntents sorts scores descending (stable, so ties keep model order) and
// keeps the first topK.
func rankIntents(scores []common.IntentScore, topK int) *common.IntentPrediction {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Confidence > scores[j].Confidence
	})
	if topK <= 0 {
		topK = 1
	}
	if topK > len(scores) {
		topK = len(scores)
	}
	ranked := scores[:topK]
	return &common.IntentPrediction{
		Intent:     ranked[0].Intent,
		Confidence: ranked[0].Confidence,
		Ranked:     ranked,
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}

var (
	_ common.TokenClassifier  = (*HugotTokenClassifier)(nil)
	_ common.IntentClassifier = (*HugotIntentClassifier)(nil)
)

//Personal.AI order the ending
