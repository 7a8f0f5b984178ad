package common

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ModelMetrics is the telemetry API of the model adapters. Token and intent
// classifiers, the sidecar client and the model fetcher record through it.
type ModelMetrics interface {
	RecordInference(ctx context.Context, params *InferenceMetricParams)

	// RecordModelLoad records a pipeline or artifact load.
	RecordModelLoad(ctx context.Context, modelName, version string, durationMs float64, success bool)

	RecordCircuitBreakerStateChange(ctx context.Context, modelName string, fromState, toState string)

	// GetCurrentStats returns a point-in-time snapshot.
	GetCurrentStats() *ModelStats
}

// Task types recorded in InferenceMetricParams.TaskType.
const (
	TaskTokenClassification  = "token_classification"
	TaskIntentClassification = "intent_classification"
)

// InferenceMetricParams carries the data for a single inference event.
type InferenceMetricParams struct {
	ModelName   string  `json:"model_name"`
	Backend     string  `json:"backend"`
	TaskType    string  `json:"task_type"`
	DurationMs  float64 `json:"duration_ms"`
	Success     bool    `json:"success"`
	InputTokens int     `json:"input_tokens,omitempty"`
	HasOffsets  bool    `json:"has_offsets,omitempty"`
}

// ModelStats is a point-in-time snapshot of model-layer metrics.
type ModelStats struct {
	TotalInferences       int64             `json:"total_inferences"`
	SuccessfulInferences  int64             `json:"successful_inferences"`
	FailedInferences      int64             `json:"failed_inferences"`
	AvgInferenceLatencyMs float64           `json:"avg_inference_latency_ms"`
	P50LatencyMs          float64           `json:"p50_latency_ms"`
	P95LatencyMs          float64           `json:"p95_latency_ms"`
	P99LatencyMs          float64           `json:"p99_latency_ms"`
	LoadedModels          []string          `json:"loaded_models"`
	CircuitBreakerStates  map[string]string `json:"circuit_breaker_states"`
}

// tally is the in-process state behind GetCurrentStats, shared by the
// Prometheus and in-memory implementations.
type tally struct {
	mu        sync.Mutex
	success   int64
	failed    int64
	latencies []float64
	sorted    bool
	sum       float64
	loaded    map[string]string // model -> version of the last good load
	breakers  map[string]string
}

func newTally() *tally {
	return &tally{
		latencies: make([]float64, 0, 256),
		loaded:    make(map[string]string),
		breakers:  make(map[string]string),
	}
}

func (t *tally) inference(ok bool, ms float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ok {
		t.success++
	} else {
		t.failed++
	}
	t.latencies = append(t.latencies, ms)
	t.sum += ms
	t.sorted = false
}

func (t *tally) load(model, version string, ok bool) {
	if !ok {
		return
	}
	t.mu.Lock()
	t.loaded[model] = version
	t.mu.Unlock()
}

func (t *tally) breaker(model, state string) {
	t.mu.Lock()
	t.breakers[model] = state
	t.mu.Unlock()
}

func (t *tally) snapshot() *ModelStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.sorted {
		sort.Float64s(t.latencies)
		t.sorted = true
	}

	s := &ModelStats{
		TotalInferences:      t.success + t.failed,
		SuccessfulInferences: t.success,
		FailedInferences:     t.failed,
		P50LatencyMs:         percentile(t.latencies, 50),
		P95LatencyMs:         percentile(t.latencies, 95),
		P99LatencyMs:         percentile(t.latencies, 99),
		LoadedModels:         make([]string, 0, len(t.loaded)),
		CircuitBreakerStates: make(map[string]string, len(t.breakers)),
	}
	if n := len(t.latencies); n > 0 {
		s.AvgInferenceLatencyMs = t.sum / float64(n)
	}
	for m := range t.loaded {
		s.LoadedModels = append(s.LoadedModels, m)
	}
	sort.Strings(s.LoadedModels)
	for m, st := range t.breakers {
		s.CircuitBreakerStates[m] = st
	}
	return s
}

// percentile interpolates linearly between the nearest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	if lo+1 >= n {
		return sorted[n-1]
	}
	return sorted[lo] + (rank-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// Prometheus

const metricsPrefix = "agribot_nlu_model_"

var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

type prometheusModelMetrics struct {
	*tally
	inferenceLatency    *prometheus.HistogramVec
	inferenceTotal      *prometheus.CounterVec
	inputTokens         *prometheus.HistogramVec
	circuitBreakerState *prometheus.GaugeVec
	modelLoadDuration   *prometheus.HistogramVec
}

// NewPrometheusModelMetrics registers the model collectors with registerer,
// the default registerer when nil.
func NewPrometheusModelMetrics(registerer prometheus.Registerer) (ModelMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &prometheusModelMetrics{
		tally: newTally(),
		inferenceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricsPrefix + "inference_duration_milliseconds",
			Help:    "Model inference latency in milliseconds.",
			Buckets: defaultLatencyBuckets,
		}, []string{"model_name", "backend", "task_type"}),
		inferenceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "inference_total",
			Help: "Model inferences by outcome.",
		}, []string{"model_name", "task_type", "status"}),
		inputTokens: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricsPrefix + "input_tokens",
			Help:    "Tokens produced for one model input.",
			Buckets: prometheus.ExponentialBuckets(4, 2, 8),
		}, []string{"model_name"}),
		circuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricsPrefix + "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half_open, 2=open).",
		}, []string{"model_name"}),
		modelLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricsPrefix + "load_duration_milliseconds",
			Help:    "Pipeline and artifact load duration in milliseconds.",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000},
		}, []string{"model_name", "version", "status"}),
	}
	for _, c := range []prometheus.Collector{
		m.inferenceLatency, m.inferenceTotal, m.inputTokens, m.circuitBreakerState, m.modelLoadDuration,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *prometheusModelMetrics) RecordInference(_ context.Context, p *InferenceMetricParams) {
	if p == nil {
		return
	}
	backend := p.Backend
	if backend == "" {
		backend = "unknown"
	}
	m.inferenceLatency.WithLabelValues(p.ModelName, backend, p.TaskType).Observe(p.DurationMs)
	m.inferenceTotal.WithLabelValues(p.ModelName, p.TaskType, outcome(p.Success)).Inc()
	if p.InputTokens > 0 {
		m.inputTokens.WithLabelValues(p.ModelName).Observe(float64(p.InputTokens))
	}
	m.inference(p.Success, p.DurationMs)
}

func (m *prometheusModelMetrics) RecordCircuitBreakerStateChange(_ context.Context, modelName string, _, toState string) {
	m.breaker(modelName, toState)
	m.circuitBreakerState.WithLabelValues(modelName).Set(circuitBreakerStateToFloat(toState))
}

func (m *prometheusModelMetrics) RecordModelLoad(_ context.Context, modelName, version string, durationMs float64, success bool) {
	m.load(modelName, version, success)
	m.modelLoadDuration.WithLabelValues(modelName, version, outcome(success)).Observe(durationMs)
}

func (m *prometheusModelMetrics) GetCurrentStats() *ModelStats { return m.snapshot() }

// Noop

type noopModelMetrics struct{}

// NewNoopModelMetrics returns a ModelMetrics that drops everything.
func NewNoopModelMetrics() ModelMetrics {
	return noopModelMetrics{}
}

func (noopModelMetrics) RecordInference(context.Context, *InferenceMetricParams)                  {}
func (noopModelMetrics) RecordModelLoad(context.Context, string, string, float64, bool)            {}
func (noopModelMetrics) RecordCircuitBreakerStateChange(context.Context, string, string, string) {}
func (noopModelMetrics) GetCurrentStats() *ModelStats                                            { return newTally().snapshot() }

// InMemoryModelMetrics keeps every event. Tests assert on the records; the
// CLI prints GetCurrentStats after a verbose run.
type InMemoryModelMetrics struct {
	*tally
	mu         sync.Mutex
	inferences []InferenceMetricParams
	modelLoads []ModelLoadRecord
}

// ModelLoadRecord is one recorded model load.
type ModelLoadRecord struct {
	ModelName  string
	Version    string
	DurationMs float64
	Success    bool
	Timestamp  time.Time
}

func NewInMemoryModelMetrics() *InMemoryModelMetrics {
	return &InMemoryModelMetrics{tally: newTally()}
}

func (m *InMemoryModelMetrics) RecordInference(_ context.Context, p *InferenceMetricParams) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.inferences = append(m.inferences, *p)
	m.mu.Unlock()
	m.inference(p.Success, p.DurationMs)
}

func (m *InMemoryModelMetrics) RecordCircuitBreakerStateChange(_ context.Context, modelName, _, toState string) {
	m.breaker(modelName, toState)
}

func (m *InMemoryModelMetrics) RecordModelLoad(_ context.Context, modelName, version string, durationMs float64, success bool) {
	m.mu.Lock()
	m.modelLoads = append(m.modelLoads, ModelLoadRecord{
		ModelName: modelName, Version: version, DurationMs: durationMs, Success: success, Timestamp: time.Now(),
	})
	m.mu.Unlock()
	m.load(modelName, version, success)
}

func (m *InMemoryModelMetrics) GetCurrentStats() *ModelStats { return m.snapshot() }

// Inferences returns copies of the recorded inference params.
func (m *InMemoryModelMetrics) Inferences() []*InferenceMetricParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*InferenceMetricParams, len(m.inferences))
	for i := range m.inferences {
		p := m.inferences[i]
		out[i] = &p
	}
	return out
}

func (m *InMemoryModelMetrics) ModelLoads() []ModelLoadRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ModelLoadRecord(nil), m.modelLoads...)
}

func (m *InMemoryModelMetrics) CircuitBreakerStates() map[string]string {
	return m.snapshot().CircuitBreakerStates
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func circuitBreakerStateToFloat(state string) float64 {
	switch state {
	case CircuitClosed:
		return 0
	case CircuitHalfOpen:
		return 1
	case CircuitOpen:
		return 2
	default:
		return -1
	}
}

var (
	_ ModelMetrics = (*prometheusModelMetrics)(nil)
	_ ModelMetrics = noopModelMetrics{}
	_ ModelMetrics = (*InMemoryModelMetrics)(nil)
)

//Personal.AI order the ending
