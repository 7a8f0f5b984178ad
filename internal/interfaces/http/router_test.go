package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AgriBot-NLU/internal/application/nlu"
	"github.com/turtacn/AgriBot-NLU/internal/interfaces/http/handlers"
	"github.com/turtacn/AgriBot-NLU/internal/interfaces/http/middleware"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/agri_extractor"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/phobert"
)

const testAPIKey = "router-test-key-000001"

type routeRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (r *routeRecorder) RecordHTTPRequest(_, path string, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, path)
}

func newTestRouter(t *testing.T, withAuth bool) (http.Handler, *routeRecorder, *middleware.RateLimiter) {
	t.Helper()
	x := agri_extractor.NewExtractor(agri_extractor.NewEngine(), nil, agri_extractor.DefaultExtractorConfig(), nil, nil)
	svc, err := nlu.NewService(nlu.Config{MaxTextLength: 200}, nlu.Deps{
		Extractor: x,
		Intent:    phobert.NewKeywordIntentClassifier(),
	})
	require.NoError(t, err)

	limiter := middleware.NewRateLimiter(1000, 1000, time.Minute)
	t.Cleanup(limiter.Stop)

	rec := &routeRecorder{}
	logCfg := middleware.DefaultLoggingConfig()
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = []string{"*"}
	cfg := RouterConfig{
		NLUHandler:    handlers.NewNLUHandler(svc, nil),
		HealthHandler: handlers.NewHealthHandler("test", svc),
		CORS:          &corsCfg,
		Logging:       &logCfg,
		RateLimiter:   limiter,
		RateLimit:     middleware.DefaultRateLimitConfig(),
		MaxBodySize:   4096,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		HTTPRecorder: rec,
	}
	if withAuth {
		cfg.Auth = middleware.NewAPIKeyAuth([]string{testAPIKey}, nil)
	}
	return NewRouter(cfg), rec, limiter
}

func serve(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	h.ServeHTTP(w, r)
	return w
}

func TestNewRouter_PublicEndpoints(t *testing.T) {
	h, _, _ := newTestRouter(t, true)

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/readyz", "", nil).Code)
	w := serve(h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# metrics", w.Body.String())
}

func TestNewRouter_APIv1_RequiresAuth(t *testing.T) {
	h, _, _ := newTestRouter(t, true)

	w := serve(h, http.MethodGet, "/api/v1/ner/labels", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(h, http.MethodGet, "/api/v1/ner/labels", "", map[string]string{middleware.APIKeyHeader: testAPIKey})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewRouter_Extract_EndToEnd(t *testing.T) {
	h, rec, _ := newTestRouter(t, false)

	w := serve(h, http.MethodPost, "/api/v1/ner/extract", `{"text":"Tưới cà chua 15 phút hôm nay"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))

	var res agri_extractor.ExtractionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	types := map[string]bool{}
	for _, e := range res.Entities {
		types[e.Type] = true
	}
	assert.True(t, types["crop_name"])
	assert.True(t, types["duration"])
	assert.Equal(t, agri_extractor.PathRulesOnly, res.DecodePath)

	assert.Contains(t, rec.routes, "/api/v1/ner/extract")
}

func TestNewRouter_Analyze_KeywordIntent(t *testing.T) {
	h, _, _ := newTestRouter(t, false)

	w := serve(h, http.MethodPost, "/api/v1/analyze", `{"text":"Bật máy bơm 10 phút","top_k":2}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res nlu.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "device_control", res.Intent)
	assert.Len(t, res.AllIntents, 2)
	assert.NotEmpty(t, res.Entities)
}

func TestNewRouter_ErrorsAreJSON(t *testing.T) {
	h, _, _ := newTestRouter(t, false)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown route", http.MethodGet, "/api/v1/nope", "", http.StatusNotFound, "COMMON_005"},
		{"empty text", http.MethodPost, "/api/v1/ner/extract", `{"text":""}`, http.StatusUnprocessableEntity, "COMMON_010"},
		{"text too long", http.MethodPost, "/api/v1/ner/extract", `{"text":"` + strings.Repeat("a", 201) + `"}`, http.StatusRequestEntityTooLarge, "NLU_004"},
		{"body too large", http.MethodPost, "/api/v1/ner/extract", `{"text":"` + strings.Repeat("a", 5000) + `"}`, http.StatusRequestEntityTooLarge, "NLU_004"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(h, tc.method, tc.path, tc.body, nil)
			assert.Equal(t, tc.status, w.Code)
			var resp middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.code, resp.Code)
		})
	}
}

func TestNewRouter_RateLimitSkipsProbes(t *testing.T) {
	h, _, limiter := newTestRouter(t, false)
	limiter.SetLimits(0.001, 1)

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/v1/ner/rules", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodGet, "/api/v1/ner/rules", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz", "", nil).Code)
}

func TestNewRouter_NilHandlers_NoPanic(t *testing.T) {
	h := NewRouter(RouterConfig{})
	assert.NotPanics(t, func() {
		w := serve(h, http.MethodGet, "/healthz", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestNewRouter_RecoversPanics(t *testing.T) {
	r := NewRouter(RouterConfig{}).(interface {
		Get(string, http.HandlerFunc)
	})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	w := serve(r.(http.Handler), http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

//Personal.AI order the ending
