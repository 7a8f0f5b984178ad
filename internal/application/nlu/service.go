// Package nlu orchestrates entity extraction and intent classification for
// the HTTP API, the CLI and the Kafka worker. It owns input validation, the
// result cache, the audit log and extraction events; the decoding itself
// lives in the agri_extractor package.
package nlu

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/redis"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/agri_extractor"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

const (
	DefaultMaxTextLength = 2000
	DefaultMaxBatchSize  = 32
	DefaultTopK          = 3
	DefaultCacheTTL      = 10 * time.Minute

	// CacheKeyPrefix namespaces extraction results in the cache.
	CacheKeyPrefix = "ner:"

	cacheName       = "ner"
	sideEffectLimit = 2 * time.Second
)

// Service defines the NLU application operations.
type Service interface {
	ExtractEntities(ctx context.Context, text string) (*agri_extractor.ExtractionResult, error)
	ExtractBatch(ctx context.Context, texts []string) ([]*agri_extractor.ExtractionResult, error)
	ClassifyIntent(ctx context.Context, text string, topK int) (*IntentResult, error)
	Analyze(ctx context.Context, text string, topK int) (*AnalysisResult, error)
	Labels() *LabelsInfo
	Rules() []agri_extractor.RuleSpec
	Readiness(ctx context.Context) *ReadinessReport
}

// IntentResult is the answer of ClassifyIntent.
type IntentResult struct {
	Intent           string               `json:"intent"`
	Confidence       float64              `json:"confidence"`
	AllIntents       []common.IntentScore `json:"all_intents"`
	ProcessingTimeMs float64              `json:"processing_time_ms"`
}

// AnalysisResult combines intent and entities for one message.
type AnalysisResult struct {
	Intent           string                       `json:"intent"`
	IntentConfidence float64                      `json:"intent_confidence"`
	AllIntents       []common.IntentScore         `json:"all_intents"`
	Entities         []*agri_extractor.EntitySpan `json:"entities"`
	EntityCount      int                          `json:"entity_count"`
	DecodePath       string                       `json:"decode_path"`
	ModelDegraded    bool                         `json:"model_degraded"`
	ProcessingTimeMs float64                      `json:"processing_time_ms"`
}

// LabelsInfo describes the active label vocabulary.
type LabelsInfo struct {
	Labels      []string          `json:"labels"`
	TypeMap     map[string]string `json:"type_map"`
	Fingerprint string            `json:"fingerprint"`
}

// HealthCheck is one readiness probe. A failing critical check makes the
// service not ready; other failures are reported only.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// ComponentStatus is the readiness of one component.
type ComponentStatus struct {
	Status   string `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
}

// ReadinessReport aggregates all health checks.
type ReadinessReport struct {
	Ready      bool                       `json:"ready"`
	Components map[string]ComponentStatus `json:"components"`
}

// AuditStore persists extraction logs.
type AuditStore interface {
	Save(ctx context.Context, rec *repositories.ExtractionLog) error
}

// EventPublisher emits extraction events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, env *kafka.EventEnvelope) error
}

// Metrics is the application-level telemetry sink.
type Metrics interface {
	RecordIntent(intent string)
	RecordCacheAccess(cache string, hit bool)
	RecordAuditFailure()
}

// Config holds the service limits.
type Config struct {
	MaxTextLength    int
	MaxBatchSize     int
	DefaultTopK      int
	CacheTTL         time.Duration
	BatchConcurrency int
	ExtractionTopic  string
	ModelName        string
}

// Deps are the collaborators of the service. Extractor and Intent are
// required; the rest are optional.
type Deps struct {
	Extractor *agri_extractor.Extractor
	Intent    common.IntentClassifier
	Cache     redis.Cache
	Audit     AuditStore
	Events    EventPublisher
	Metrics   Metrics
	Checks    []HealthCheck
	Logger    logging.Logger
}

type serviceImpl struct {
	cfg       Config
	extractor *agri_extractor.Extractor
	intent    common.IntentClassifier
	cache     redis.Cache
	audit     AuditStore
	events    EventPublisher
	metrics   Metrics
	checks    []HealthCheck
	logger    logging.Logger
	labels    int
}

// NewService validates deps and fills zero limits with defaults.
func NewService(cfg Config, deps Deps) (Service, error) {
	if deps.Extractor == nil {
		return nil, errors.New(errors.ErrCodeValidation, "extractor is required")
	}
	if deps.Intent == nil {
		return nil, errors.New(errors.ErrCodeValidation, "intent classifier is required")
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = DefaultMaxTextLength
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}
	if cfg.ExtractionTopic == "" {
		cfg.ExtractionTopic = kafka.TopicEntitiesExtracted
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	return &serviceImpl{
		cfg:       cfg,
		extractor: deps.Extractor,
		intent:    deps.Intent,
		cache:     deps.Cache,
		audit:     deps.Audit,
		events:    deps.Events,
		metrics:   deps.Metrics,
		checks:    deps.Checks,
		logger:    deps.Logger.Named("nlu"),
		labels:    len(common.DefaultIntentLabels),
	}, nil
}

// ---------------------------------------------------------------------------
// Entities
// ---------------------------------------------------------------------------

func (s *serviceImpl) ExtractEntities(ctx context.Context, text string) (*agri_extractor.ExtractionResult, error) {
	if err := s.validateText(text); err != nil {
		return nil, err
	}
	start := time.Now()
	normalized := norm.NFC.String(text)

	res, err := s.extract(ctx, text)
	if err != nil {
		return nil, err
	}
	s.afterExtraction(ctx, normalized, res, time.Since(start))
	return res, nil
}

// extract goes through the result cache when one is configured. Concurrent
// requests for the same text share one model call; degraded results are
// returned but not stored. Values of cached spans are recomputed on every
// hit so that relative dates follow the clock.
func (s *serviceImpl) extract(ctx context.Context, text string) (*agri_extractor.ExtractionResult, error) {
	if s.cache == nil {
		return s.extractor.Extract(ctx, text)
	}
	var res agri_extractor.ExtractionResult
	hit, err := s.cache.Load(ctx, s.cacheKey(text), &res, s.cfg.CacheTTL, func(ctx context.Context) (interface{}, bool, error) {
		r, err := s.extractor.Extract(ctx, text)
		if err != nil {
			return nil, false, err
		}
		return r, !r.ModelDegraded, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCacheAccess(cacheName, hit)
	if hit {
		s.extractor.Engine().NormalizeValues(res.Entities)
	}
	return &res, nil
}

// cacheKey ties a text to the vocabulary that decoded it, so a model with a
// different label set never sees stale spans. The key covers the text as sent:
// offsets index the caller's input, so NFC and NFD forms of one message are
// cached apart.
func (s *serviceImpl) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(s.extractor.Engine().Vocabulary().Fingerprint()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return CacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (s *serviceImpl) ExtractBatch(ctx context.Context, texts []string) ([]*agri_extractor.ExtractionResult, error) {
	if len(texts) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "texts must not be empty")
	}
	if len(texts) > s.cfg.MaxBatchSize {
		return nil, errors.New(errors.ErrCodeBatchTooLarge, "batch exceeds maximum size").
			WithDetail(formatLimit(len(texts), s.cfg.MaxBatchSize))
	}
	for i, t := range texts {
		if err := s.validateText(t); err != nil {
			var appErr *errors.AppError
			if errors.As(err, &appErr) {
				return nil, appErr.WithDetail("texts[" + strconv.Itoa(i) + "]: " + appErr.Detail)
			}
			return nil, err
		}
	}

	results := make([]*agri_extractor.ExtractionResult, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, t := range texts {
		i, t := i, t
		g.Go(func() error {
			res, err := s.ExtractEntities(gctx, t)
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

// afterExtraction runs the side effects of a successful extraction. They
// outlive request cancellation and never fail the call.
func (s *serviceImpl) afterExtraction(ctx context.Context, normalized string, res *agri_extractor.ExtractionResult, elapsed time.Duration) {
	if s.audit == nil && s.events == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectLimit)
	defer cancel()

	meta := RequestMetaFrom(ctx)
	hash := sha256.Sum256([]byte(normalized))
	textHash := hex.EncodeToString(hash[:])

	if s.audit != nil {
		entities, err := json.Marshal(res.Entities)
		if err != nil {
			entities = []byte("[]")
		}
		rec := &repositories.ExtractionLog{
			RequestID:        meta.RequestID,
			Source:           meta.Source,
			TextHash:         textHash,
			TextLength:       utf8.RuneCountInString(normalized),
			DecodePath:       res.DecodePath,
			ModelName:        s.cfg.ModelName,
			ModelDegraded:    res.ModelDegraded,
			EntityCount:      res.EntityCount,
			EntityTypes:      entityTypes(res.Entities),
			Entities:         entities,
			UnmatchedTokens:  res.UnmatchedTokens,
			ProcessingTimeMs: msOf(elapsed),
		}
		if err := s.audit.Save(sctx, rec); err != nil {
			s.metrics.RecordAuditFailure()
			s.logger.Warn("Failed to write extraction audit log",
				logging.String("request_id", meta.RequestID), logging.Err(err))
		}
	}

	if s.events != nil {
		env, err := kafka.NewEventEnvelope(kafka.EventTypeEntities, kafka.EventSourceNLU, kafka.EntitiesExtractedPayload{
			RequestID:        meta.RequestID,
			TextHash:         textHash,
			DecodePath:       res.DecodePath,
			Entities:         EntityPayloads(res.Entities),
			ModelDegraded:    res.ModelDegraded,
			ProcessingTimeMs: msOf(elapsed),
			ExtractedAt:      time.Now().UTC(),
		})
		if err == nil {
			env.TraceID = meta.RequestID
			err = s.events.PublishEvent(sctx, s.cfg.ExtractionTopic, textHash, env)
		}
		if err != nil {
			s.logger.Warn("Failed to publish extraction event",
				logging.String("request_id", meta.RequestID), logging.Err(err))
		}
	}
}

// ---------------------------------------------------------------------------
// Intent
// ---------------------------------------------------------------------------

func (s *serviceImpl) ClassifyIntent(ctx context.Context, text string, topK int) (*IntentResult, error) {
	if err := s.validateText(text); err != nil {
		return nil, err
	}
	start := time.Now()
	pred, err := s.classify(ctx, text, topK)
	if err != nil {
		return nil, err
	}
	return &IntentResult{
		Intent:           pred.Intent,
		Confidence:       pred.Confidence,
		AllIntents:       pred.Ranked,
		ProcessingTimeMs: msOf(time.Since(start)),
	}, nil
}

func (s *serviceImpl) classify(ctx context.Context, text string, topK int) (*common.IntentPrediction, error) {
	pred, err := s.intent.ClassifyIntent(ctx, norm.NFC.String(text), s.effectiveTopK(topK))
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "intent classification cancelled")
		}
		if errors.GetCode(err) != errors.CodeUnknown {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeInferenceFailed, "intent classification failed")
	}
	s.metrics.RecordIntent(pred.Intent)
	if pred.Ranked == nil {
		pred.Ranked = []common.IntentScore{}
	}
	return pred, nil
}

// effectiveTopK applies the default and caps at the label count.
func (s *serviceImpl) effectiveTopK(topK int) int {
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	if topK > s.labels {
		topK = s.labels
	}
	return topK
}

// ---------------------------------------------------------------------------
// Analyze
// ---------------------------------------------------------------------------

func (s *serviceImpl) Analyze(ctx context.Context, text string, topK int) (*AnalysisResult, error) {
	if err := s.validateText(text); err != nil {
		return nil, err
	}
	start := time.Now()

	var (
		pred *common.IntentPrediction
		ents *agri_extractor.ExtractionResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pred, err = s.classify(gctx, text, topK)
		return err
	})
	g.Go(func() error {
		var err error
		ents, err = s.ExtractEntities(gctx, text)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &AnalysisResult{
		Intent:           pred.Intent,
		IntentConfidence: pred.Confidence,
		AllIntents:       pred.Ranked,
		Entities:         ents.Entities,
		EntityCount:      ents.EntityCount,
		DecodePath:       ents.DecodePath,
		ModelDegraded:    ents.ModelDegraded,
		ProcessingTimeMs: msOf(time.Since(start)),
	}, nil
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

func (s *serviceImpl) Labels() *LabelsInfo {
	v := s.extractor.Engine().Vocabulary()
	return &LabelsInfo{
		Labels:      v.Labels(),
		TypeMap:     v.TypeMap(),
		Fingerprint: v.Fingerprint(),
	}
}

func (s *serviceImpl) Rules() []agri_extractor.RuleSpec {
	return s.extractor.Engine().Rules().Specs()
}

func (s *serviceImpl) Readiness(ctx context.Context) *ReadinessReport {
	report := &ReadinessReport{Ready: true, Components: make(map[string]ComponentStatus, len(s.checks))}
	type outcome struct {
		check HealthCheck
		err   error
	}
	results := make([]outcome, len(s.checks))

	var g errgroup.Group
	for i, c := range s.checks {
		i, c := i, c
		g.Go(func() error {
			results[i] = outcome{check: c, err: c.Check(ctx)}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		st := ComponentStatus{Status: "up", Critical: r.check.Critical}
		if r.err != nil {
			st.Status = "down"
			st.Error = r.err.Error()
			if r.check.Critical {
				report.Ready = false
			}
		}
		report.Components[r.check.Name] = st
	}
	return report
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *serviceImpl) validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New(errors.ErrCodeValidation, "text must not be empty")
	}
	if n := utf8.RuneCountInString(text); n > s.cfg.MaxTextLength {
		return errors.New(errors.ErrCodeTextTooLong, "text exceeds maximum length").
			WithDetail(formatLimit(n, s.cfg.MaxTextLength))
	}
	return nil
}

// EntityPayloads converts spans to their event form.
func EntityPayloads(spans []*agri_extractor.EntitySpan) []kafka.EntityPayload {
	out := make([]kafka.EntityPayload, 0, len(spans))
	for _, e := range spans {
		out = append(out, kafka.EntityPayload{
			Type:       e.Type,
			Text:       e.Raw,
			Start:      e.Start,
			End:        e.End,
			Confidence: e.Confidence,
			Source:     e.Source,
			Value:      e.Value,
		})
	}
	return out
}

func entityTypes(spans []*agri_extractor.EntitySpan) []string {
	seen := make(map[string]struct{}, len(spans))
	types := make([]string, 0, len(spans))
	for _, e := range spans {
		if _, ok := seen[e.Type]; ok {
			continue
		}
		seen[e.Type] = struct{}{}
		types = append(types, e.Type)
	}
	sort.Strings(types)
	return types
}

func msOf(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func formatLimit(got, limit int) string {
	return strconv.Itoa(got) + " > " + strconv.Itoa(limit)
}

type noopMetrics struct{}

func (noopMetrics) RecordIntent(string)            {}
func (noopMetrics) RecordCacheAccess(string, bool) {}
func (noopMetrics) RecordAuditFailure()            {}

//Personal.AI order the ending
