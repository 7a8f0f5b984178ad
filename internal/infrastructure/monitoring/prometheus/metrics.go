package prometheus

import (
	"context"
	"strconv"
	"time"
)

// NLUMetrics holds the service metrics.
type NLUMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec
	RateLimitedTotal    CounterVec

	// gRPC
	GRPCRequestsTotal   CounterVec
	GRPCRequestDuration HistogramVec

	// Extraction
	ExtractionsTotal        CounterVec
	ExtractionDuration      HistogramVec
	EntitiesTotal           CounterVec
	EntitiesPerText         HistogramVec
	ModelFailuresTotal      CounterVec
	UnmatchedTokensTotal    CounterVec
	IntentPredictionsTotal  CounterVec
	IntentFallbacksTotal    CounterVec

	// Infrastructure
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	AuditWriteFailures     CounterVec
	MessagesProcessedTotal CounterVec
	MessageProcessDuration HistogramVec
	HealthCheckStatus      GaugeVec
}

var (
	DefaultHTTPDurationBuckets       = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	DefaultExtractionDurationBuckets = []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}
	DefaultEntityCountBuckets        = []float64{0, 1, 2, 3, 5, 8, 13, 21}
)

// NewNLUMetrics registers all metrics on collector.
func NewNLUMetrics(collector MetricsCollector) *NLUMetrics {
	m := &NLUMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")
	m.RateLimitedTotal = collector.RegisterCounter("http_rate_limited_total", "Requests rejected by the rate limiter", "path")

	m.GRPCRequestsTotal = collector.RegisterCounter("grpc_requests_total", "Total gRPC requests", "service", "method", "code")
	m.GRPCRequestDuration = collector.RegisterHistogram("grpc_request_duration_seconds", "gRPC request duration", DefaultHTTPDurationBuckets, "service", "method")

	m.ExtractionsTotal = collector.RegisterCounter("extractions_total", "Entity extractions by decode path", "path")
	m.ExtractionDuration = collector.RegisterHistogram("extraction_duration_seconds", "Entity extraction duration", DefaultExtractionDurationBuckets, "path")
	m.EntitiesTotal = collector.RegisterCounter("entities_total", "Extracted entities", "type", "source")
	m.EntitiesPerText = collector.RegisterHistogram("entities_per_text", "Entities per extracted text", DefaultEntityCountBuckets, "path")
	m.ModelFailuresTotal = collector.RegisterCounter("model_failures_total", "Token classifier failures answered with rules only")
	m.UnmatchedTokensTotal = collector.RegisterCounter("unmatched_tokens_total", "Model tokens that could not be aligned to the text")
	m.IntentPredictionsTotal = collector.RegisterCounter("intent_predictions_total", "Intent predictions", "intent")
	m.IntentFallbacksTotal = collector.RegisterCounter("intent_fallbacks_total", "Intent predictions answered by keywords", "reason")

	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.AuditWriteFailures = collector.RegisterCounter("audit_write_failures_total", "Failed extraction audit writes")
	m.MessagesProcessedTotal = collector.RegisterCounter("messages_processed_total", "Chat messages processed by the worker", "topic", "status")
	m.MessageProcessDuration = collector.RegisterHistogram("message_process_duration_seconds", "Chat message processing duration", DefaultHTTPDurationBuckets, "topic")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")

	return m
}

// RecordExtraction implements agri_extractor.Metrics.
func (m *NLUMetrics) RecordExtraction(_ context.Context, path string, entityCount int, durationMs float64) {
	m.ExtractionsTotal.WithLabelValues(path).Inc()
	m.ExtractionDuration.WithLabelValues(path).Observe(durationMs / 1000)
	m.EntitiesPerText.WithLabelValues(path).Observe(float64(entityCount))
}

// RecordEntity implements agri_extractor.Metrics.
func (m *NLUMetrics) RecordEntity(_ context.Context, entityType, source string) {
	m.EntitiesTotal.WithLabelValues(entityType, source).Inc()
}

// RecordModelFailure implements agri_extractor.Metrics.
func (m *NLUMetrics) RecordModelFailure(context.Context) {
	m.ModelFailuresTotal.WithLabelValues().Inc()
}

// RecordUnmatchedTokens implements agri_extractor.Metrics.
func (m *NLUMetrics) RecordUnmatchedTokens(_ context.Context, n int) {
	m.UnmatchedTokensTotal.WithLabelValues().Add(float64(n))
}

// Helpers

func (m *NLUMetrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordGRPCRequest implements the gRPC server's recorder.
func (m *NLUMetrics) RecordGRPCRequest(service, method, code string, duration time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(service, method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

func (m *NLUMetrics) RecordIntent(intent string) {
	m.IntentPredictionsTotal.WithLabelValues(intent).Inc()
}

func (m *NLUMetrics) RecordIntentFallback(reason string) {
	m.IntentFallbacksTotal.WithLabelValues(reason).Inc()
}

func (m *NLUMetrics) RecordCacheAccess(cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func (m *NLUMetrics) RecordAuditFailure() {
	m.AuditWriteFailures.WithLabelValues().Inc()
}

func (m *NLUMetrics) RecordMessage(topic, status string, duration time.Duration) {
	m.MessagesProcessedTotal.WithLabelValues(topic, status).Inc()
	m.MessageProcessDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

func (m *NLUMetrics) SetHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}

//Personal.AI order the ending
