package phobert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// SidecarConfig configures the HTTP client for the Python model sidecar.
type SidecarConfig struct {
	// BaseURL of the sidecar, e.g. "http://phobert-sidecar:8000".
	BaseURL string `mapstructure:"base_url" yaml:"base_url" json:"base_url"`

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	// ModelName labels metrics and TokenClassification.ModelName.
	ModelName string `mapstructure:"model_name" yaml:"model_name" json:"model_name"`

	Retry common.RetryPolicy `mapstructure:"retry" yaml:"retry" json:"retry"`

	// BreakerThreshold consecutive failures open the breaker; 0 disables it.
	BreakerThreshold int           `mapstructure:"breaker_threshold" yaml:"breaker_threshold" json:"breaker_threshold"`
	BreakerReset     time.Duration `mapstructure:"breaker_reset" yaml:"breaker_reset" json:"breaker_reset"`
}

// DefaultSidecarConfig returns the settings used by docker-compose.
func DefaultSidecarConfig() SidecarConfig {
	return SidecarConfig{
		BaseURL:          "http://localhost:8000",
		Timeout:          5 * time.Second,
		ModelName:        "phobert-sidecar",
		Retry:            common.DefaultRetryPolicy(),
		BreakerThreshold: 5,
		BreakerReset:     30 * time.Second,
	}
}

// SidecarClient calls the PhoBERT sidecar over HTTP. It implements both
// common.TokenClassifier and common.IntentClassifier. Calls are retried on
// transport errors and 5xx answers and pass through one circuit breaker.
type SidecarClient struct {
	baseURL string
	name    string
	http    *http.Client
	retry   common.RetryPolicy
	breaker *common.CircuitBreaker
	metrics common.ModelMetrics
	logger  common.Logger
}

// NewSidecarClient validates cfg and builds a client. A nil httpClient gets
// one with cfg.Timeout.
func NewSidecarClient(cfg SidecarConfig, httpClient *http.Client, metrics common.ModelMetrics, logger common.Logger) (*SidecarClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "sidecar base url is required")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "phobert-sidecar"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if metrics == nil {
		metrics = common.NewNoopModelMetrics()
	}
	if logger == nil {
		logger = common.NewNoopLogger()
	}
	retry := cfg.Retry
	if retry.Retryable == nil {
		retry.Retryable = isRetryableSidecarError
	}

	return &SidecarClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		name:    cfg.ModelName,
		http:    httpClient,
		retry:   retry,
		breaker: common.NewCircuitBreaker(cfg.ModelName, cfg.BreakerThreshold, cfg.BreakerReset, logger, metrics),
		metrics: metrics,
		logger:  logger,
	}, nil
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type textRequest struct {
	Text string `json:"text"`
	TopK int    `json:"top_k,omitempty"`
}

// tokensResponse is the /ner/tokens answer. Offsets are present only when
// the sidecar tokenizer can produce them; they are Python string indices,
// i.e. rune offsets.
type tokensResponse struct {
	Model           string    `json:"model"`
	InputIDs        []int     `json:"input_ids"`
	Tokens          []string  `json:"tokens"`
	LabelIDs        []int     `json:"label_ids"`
	Scores          []float64 `json:"scores,omitempty"`
	Offsets         [][2]int  `json:"offsets,omitempty"`
	SpecialTokenIDs []int     `json:"special_token_ids"`
}

type intentResponse struct {
	Intent     string               `json:"intent"`
	Confidence float64              `json:"confidence"`
	AllIntents []common.IntentScore `json:"all_intents"`
}

type healthResponse struct {
	Status           string `json:"status"`
	IntentClassifier bool   `json:"intent_classifier"`
	NERExtractor     bool   `json:"ner_extractor"`
}

// statusError carries a non-2xx sidecar answer.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("sidecar returned %d: %s", e.status, e.body)
}

func isRetryableSidecarError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500 || se.status == http.StatusTooManyRequests
	}
	return true
}

// ---------------------------------------------------------------------------
// TokenClassifier
// ---------------------------------------------------------------------------

// Classify posts text to /ner/tokens.
func (c *SidecarClient) Classify(ctx context.Context, text string) (*common.TokenClassification, error) {
	start := time.Now()
	var resp tokensResponse
	err := c.call(ctx, http.MethodPost, "/ner/tokens", textRequest{Text: text}, &resp)

	params := &common.InferenceMetricParams{
		ModelName:  c.name,
		Backend:    BackendSidecar,
		TaskType:   common.TaskTokenClassification,
		DurationMs: msSince(start),
	}
	if err != nil {
		c.metrics.RecordInference(ctx, params)
		return nil, err
	}

	tc, err := resp.toClassification(c.name)
	if err != nil {
		c.metrics.RecordInference(ctx, params)
		return nil, err
	}
	params.Success = true
	params.InputTokens = len(tc.Tokens)
	params.HasOffsets = tc.HasOffsets
	c.metrics.RecordInference(ctx, params)
	return tc, nil
}

func (r *tokensResponse) toClassification(fallbackName string) (*common.TokenClassification, error) {
	n := len(r.InputIDs)
	if len(r.Tokens) != n || len(r.LabelIDs) != n {
		return nil, errors.New(errors.ErrCodeInferenceFailed, "malformed sidecar token response").
			WithDetail(fmt.Sprintf("input_ids=%d tokens=%d label_ids=%d", n, len(r.Tokens), len(r.LabelIDs)))
	}
	hasOffsets := len(r.Offsets) == n && n > 0
	hasScores := len(r.Scores) == n

	tokens := make([]common.Token, n)
	for i := 0; i < n; i++ {
		tokens[i] = common.Token{
			ID:      r.InputIDs[i],
			Text:    r.Tokens[i],
			LabelID: r.LabelIDs[i],
		}
		if hasScores {
			tokens[i].Score = r.Scores[i]
		}
		if hasOffsets {
			tokens[i].Start = r.Offsets[i][0]
			tokens[i].End = r.Offsets[i][1]
		}
	}
	name := r.Model
	if name == "" {
		name = fallbackName
	}
	return &common.TokenClassification{
		Tokens:          tokens,
		HasOffsets:      hasOffsets,
		SpecialTokenIDs: r.SpecialTokenIDs,
		ModelName:       name,
	}, nil
}

// ---------------------------------------------------------------------------
// IntentClassifier
// ---------------------------------------------------------------------------

// ClassifyIntent posts text to /intent/classify.
func (c *SidecarClient) ClassifyIntent(ctx context.Context, text string, topK int) (*common.IntentPrediction, error) {
	start := time.Now()
	var resp intentResponse
	err := c.call(ctx, http.MethodPost, "/intent/classify", textRequest{Text: text, TopK: topK}, &resp)

	params := &common.InferenceMetricParams{
		ModelName:  c.name,
		Backend:    BackendSidecar,
		TaskType:   common.TaskIntentClassification,
		DurationMs: msSince(start),
		Success:    err == nil,
	}
	c.metrics.RecordInference(ctx, params)
	if err != nil {
		return nil, err
	}
	if resp.Intent == "" {
		return nil, errors.New(errors.ErrCodeInferenceFailed, "sidecar returned no intent")
	}
	ranked := resp.AllIntents
	if len(ranked) == 0 {
		ranked = []common.IntentScore{{Intent: resp.Intent, Confidence: resp.Confidence}}
	}
	return &common.IntentPrediction{
		Intent:     resp.Intent,
		Confidence: resp.Confidence,
		Ranked:     ranked,
	}, nil
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// Healthy calls GET /health once, bypassing retries and the breaker.
func (c *SidecarClient) Healthy(ctx context.Context) error {
	var resp healthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return errors.Wrap(err, errors.ErrCodeModelNotAvailable, "sidecar health check failed")
	}
	if resp.Status != "healthy" {
		return errors.New(errors.ErrCodeModelNotAvailable, "sidecar unhealthy").WithDetail(resp.Status)
	}
	if !resp.NERExtractor {
		return errors.New(errors.ErrCodeModelNotAvailable, "sidecar has no NER model loaded")
	}
	return nil
}

// BreakerState exposes the circuit-breaker state for readiness reporting.
func (c *SidecarClient) BreakerState() string { return c.breaker.State() }

// Close releases idle connections.
func (c *SidecarClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// call runs one logical request through the breaker and the retry policy.
func (c *SidecarClient) call(ctx context.Context, method, path string, in, out any) error {
	attempt := 0
	err := common.Retry(ctx, &c.retry, func(ctx context.Context) error {
		attempt++
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.do(ctx, method, path, in, out)
		})
	})
	if err == nil {
		return nil
	}

	c.logger.Warn("sidecar call failed", "path", path, "attempts", attempt, "error", err)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(err, errors.ErrCodeTimeout, "sidecar call cancelled")
	case errors.Is(err, common.ErrCircuitOpen):
		return errors.Wrap(err, errors.ErrCodeModelNotAvailable, "sidecar circuit open")
	default:
		return errors.Wrap(err, errors.ErrCodeInferenceFailed, "sidecar call failed").WithDetail(path)
	}
}

// do performs a single HTTP exchange.
func (c *SidecarClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var (
	_ common.TokenClassifier  = (*SidecarClient)(nil)
	_ common.IntentClassifier = (*SidecarClient)(nil)
)

//Personal.AI order the ending
