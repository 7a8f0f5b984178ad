package agri_extractor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// Decode paths, reported to metrics and logs.
const (
	PathOffset     = "offset"
	PathOffsetless = "offsetless"
	PathRulesOnly  = "rules_only"
)

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Engine is the pure span pipeline: decode or reconstruct, merge with rules,
// resolve overlaps, filter, normalise. It holds only immutable tables and is
// safe for concurrent use.
type Engine struct {
	vocab      *LabelVocabulary
	rules      *RuleSet
	filter     *EntityFilter
	normalizer *ValueNormalizer
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithVocabulary replaces the default label vocabulary.
func WithVocabulary(v *LabelVocabulary) EngineOption {
	return func(e *Engine) {
		if v != nil {
			e.vocab = v
		}
	}
}

// WithRules replaces the default rule set.
func WithRules(rs *RuleSet) EngineOption {
	return func(e *Engine) {
		if rs != nil {
			e.rules = rs
		}
	}
}

// WithFilter replaces the default entity filter.
func WithFilter(f *EntityFilter) EngineOption {
	return func(e *Engine) {
		if f != nil {
			e.filter = f
		}
	}
}

// WithNormalizer replaces the default value normalizer.
func WithNormalizer(n *ValueNormalizer) EngineOption {
	return func(e *Engine) {
		if n != nil {
			e.normalizer = n
		}
	}
}

// NewEngine builds an Engine from the built-in tables, then applies opts.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.vocab == nil {
		e.vocab = DefaultLabelVocabulary()
	}
	if e.rules == nil {
		e.rules = DefaultRuleSet()
	}
	if e.filter == nil {
		e.filter = DefaultEntityFilter()
	}
	if e.normalizer == nil {
		e.normalizer = NewValueNormalizer(nil)
	}
	return e
}

// Vocabulary returns the engine's label vocabulary.
func (e *Engine) Vocabulary() *LabelVocabulary { return e.vocab }

// Rules returns the engine's rule set.
func (e *Engine) Rules() *RuleSet { return e.rules }

// NormalizeValues recomputes Value on spans. Relative dates depend on the
// clock, so spans decoded earlier must be renormalised before reuse.
func (e *Engine) NormalizeValues(spans []*EntitySpan) { e.normalizer.Apply(spans) }

// Decode returns the final entity list for text given the model's output. A
// nil tc runs rules only. It never fails; the worst case is an empty list.
func (e *Engine) Decode(text string, tc *common.TokenClassification) []*EntitySpan {
	spans, _ := e.decode(text, tc)
	return spans
}

// decodeStats describes how a Decode call went.
type decodeStats struct {
	path      string
	unmatched int
}

func (e *Engine) decode(text string, tc *common.TokenClassification) ([]*EntitySpan, decodeStats) {
	runes := []rune(text)
	stats := decodeStats{path: PathRulesOnly}

	var model []*EntitySpan
	if tc != nil {
		if tc.HasOffsets {
			stats.path = PathOffset
			model = decodeWithOffsets(runes, tc.Tokens, e.vocab)
		} else {
			stats.path = PathOffsetless
			rec := reconstruct(runes, tc, e.vocab)
			model = rec.Spans
			stats.unmatched = rec.Unmatched
		}
	}

	merged := MergeSpans(model, e.rules.extract(text, runes))
	kept := e.filter.Filter(merged)
	e.normalizer.Apply(kept)
	return kept, stats
}

// ---------------------------------------------------------------------------
// Extractor
// ---------------------------------------------------------------------------

// ExtractionResult is the output of a single Extract call. Text is the input
// as given and entity offsets are rune offsets into it, whatever its Unicode
// normalisation form. Model and rules see the NFC form.
type ExtractionResult struct {
	Text             string        `json:"text"`
	Entities         []*EntitySpan `json:"entities"`
	EntityCount      int           `json:"entity_count"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	DecodePath       string        `json:"decode_path"`
	ModelDegraded    bool          `json:"model_degraded,omitempty"`
	UnmatchedTokens  int           `json:"unmatched_tokens,omitempty"`
}

// ExtractorConfig holds tuneable parameters for the extraction pipeline.
type ExtractorConfig struct {
	NormalizeUnicode bool          `json:"normalize_unicode" yaml:"normalize_unicode" mapstructure:"normalize_unicode"`
	BatchConcurrency int           `json:"batch_concurrency" yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
	ModelTimeout     time.Duration `json:"model_timeout" yaml:"model_timeout" mapstructure:"model_timeout"`
}

// DefaultExtractorConfig returns production defaults.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		NormalizeUnicode: true,
		BatchConcurrency: 4,
		ModelTimeout:     5 * time.Second,
	}
}

// Metrics records extraction telemetry.
type Metrics interface {
	RecordExtraction(ctx context.Context, path string, entityCount int, durationMs float64)
	RecordEntity(ctx context.Context, entityType, source string)
	RecordModelFailure(ctx context.Context)
	RecordUnmatchedTokens(ctx context.Context, n int)
}

// Extractor runs the token classifier and the Engine for raw user text.
type Extractor struct {
	engine  *Engine
	model   common.TokenClassifier
	config  ExtractorConfig
	metrics Metrics
	logger  common.Logger
}

// NewExtractor wires an Extractor. A nil model means rules only; nil metrics
// and logger are replaced with no-ops.
func NewExtractor(engine *Engine, model common.TokenClassifier, config ExtractorConfig, metrics Metrics, logger common.Logger) *Extractor {
	if engine == nil {
		engine = NewEngine()
	}
	if metrics == nil {
		metrics = &noopMetrics{}
	}
	if logger == nil {
		logger = common.NewNoopLogger()
	}
	return &Extractor{
		engine:  engine,
		model:   model,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// Engine returns the underlying engine.
func (x *Extractor) Engine() *Engine { return x.engine }

// Extract returns the entities in text. A model failure degrades to rule-only
// output; the only error is cancellation of ctx.
func (x *Extractor) Extract(ctx context.Context, text string) (*ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTimeout, "extraction cancelled")
	}
	start := time.Now()

	input := text
	var rmap *runeMap
	if x.config.NormalizeUnicode {
		text, rmap = normalizeNFC(text)
	}

	var (
		tc       *common.TokenClassification
		degraded bool
	)
	if x.model != nil && text != "" {
		var err error
		tc, err = x.classify(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "extraction cancelled")
			}
			x.logger.Warn("token classification failed, continuing with rules only", "error", err)
			x.metrics.RecordModelFailure(ctx)
			tc, degraded = nil, true
		}
	}

	entities, stats := x.engine.decode(text, tc)
	entities = rmap.remap(entities)
	if stats.unmatched > 0 {
		x.logger.Debug("tokens not aligned to text", "unmatched", stats.unmatched, "tokens", len(tc.Tokens))
		x.metrics.RecordUnmatchedTokens(ctx, stats.unmatched)
	}

	elapsed := time.Since(start)
	x.metrics.RecordExtraction(ctx, stats.path, len(entities), float64(elapsed.Microseconds())/1000)
	for _, ent := range entities {
		x.metrics.RecordEntity(ctx, ent.Type, ent.Source)
	}

	return &ExtractionResult{
		Text:             input,
		Entities:         entities,
		EntityCount:      len(entities),
		ProcessingTimeMs: elapsed.Milliseconds(),
		DecodePath:       stats.path,
		ModelDegraded:    degraded,
		UnmatchedTokens:  stats.unmatched,
	}, nil
}

func (x *Extractor) classify(ctx context.Context, text string) (*common.TokenClassification, error) {
	if x.config.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.config.ModelTimeout)
		defer cancel()
	}
	tc, err := x.model.Classify(ctx, text)
	if err != nil {
		return nil, err
	}
	if tc == nil {
		return nil, errors.New(errors.ErrCodeInferenceFailed, "token classifier returned no output")
	}
	return tc, nil
}

// ExtractBatch extracts every text with bounded concurrency. Results keep the
// input order.
func (x *Extractor) ExtractBatch(ctx context.Context, texts []string) ([]*ExtractionResult, error) {
	if len(texts) == 0 {
		return []*ExtractionResult{}, nil
	}

	concurrency := x.config.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]*ExtractionResult, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, t := range texts {
		i, t := i, t
		g.Go(func() error {
			res, err := x.Extract(gctx, t)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// No-op defaults
// ---------------------------------------------------------------------------

type noopMetrics struct{}

func (n *noopMetrics) RecordExtraction(context.Context, string, int, float64) {}
func (n *noopMetrics) RecordEntity(context.Context, string, string)           {}
func (n *noopMetrics) RecordModelFailure(context.Context)                     {}
func (n *noopMetrics) RecordUnmatchedTokens(context.Context, int)             {}

//Personal.AI order the ending
