package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AgriBot-NLU/pkg/errors"
	"github.com/turtacn/AgriBot-NLU/pkg/types/nlu"
)

func decodeBody(t *testing.T, r *http.Request, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r.Body).Decode(dst))
}

func writeBody(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNERClient_Extract(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/ner/extract", r.URL.Path)
		var req nlu.TextRequest
		decodeBody(t, r, &req)
		assert.Equal(t, "bật máy bơm số 2", req.Text)
		writeBody(w, http.StatusOK, nlu.ExtractionResult{
			Text:        req.Text,
			Entities:    []*nlu.Entity{{Type: nlu.TypeDevice, Raw: "máy bơm số 2", Start: 4, End: 16, Confidence: 0.95}},
			EntityCount: 1,
			DecodePath:  nlu.PathOffset,
		})
	})

	res, err := c.NER().Extract(context.Background(), "bật máy bơm số 2")
	require.NoError(t, err)
	require.Equal(t, 1, res.EntityCount)
	assert.Equal(t, "máy bơm số 2", res.First(nlu.TypeDevice).Raw)
}

func TestNERClient_Extract_ValidatesLocally(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, WithMaxTextLength(5))

	_, err := c.NER().Extract(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.GetCode(err))

	_, err = c.NER().Extract(context.Background(), strings.Repeat("ơ", 6))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 5")
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestNERClient_ExtractBatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ner/extract/batch", r.URL.Path)
		var req nlu.BatchRequest
		decodeBody(t, r, &req)
		out := nlu.BatchResult{Count: len(req.Texts)}
		for _, txt := range req.Texts {
			out.Results = append(out.Results, &nlu.ExtractionResult{Text: txt, Entities: []*nlu.Entity{}})
		}
		writeBody(w, http.StatusOK, out)
	})

	res, err := c.NER().ExtractBatch(context.Background(), []string{"tưới lúa", "bón phân"})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "bón phân", res.Results[1].Text)
}

func TestNERClient_ExtractBatch_Invalid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent")
	})
	_, err := c.NER().ExtractBatch(context.Background(), nil)
	require.Error(t, err)

	_, err = c.NER().ExtractBatch(context.Background(), []string{"ok", ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 1")
}

func TestNERClient_LabelsAndRules(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/api/v1/ner/labels":
			writeBody(w, http.StatusOK, nlu.LabelsInfo{
				Labels:      []string{"O", "B-CROP", "I-CROP"},
				TypeMap:     map[string]string{"CROP": nlu.TypeCrop},
				Fingerprint: "abc123",
			})
		case "/api/v1/ner/rules":
			writeBody(w, http.StatusOK, nlu.RulesResult{Rules: []nlu.Rule{{Name: "money_vnd", Type: nlu.TypeMoney, Confidence: 0.9}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	labels, err := c.NER().Labels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", labels.Fingerprint)
	assert.Equal(t, nlu.TypeCrop, labels.TypeMap["CROP"])

	rules, err := c.NER().Rules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "money_vnd", rules[0].Name)
}

func TestIntentClient_ClassifyAndAnalyze(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req nlu.TextRequest
		decodeBody(t, r, &req)
		assert.Equal(t, 2, req.TopK)
		switch r.URL.Path {
		case "/api/v1/intent/classify":
			writeBody(w, http.StatusOK, nlu.IntentResult{
				Intent:     "device_control",
				Confidence: 0.8,
				AllIntents: []nlu.IntentScore{{Intent: "device_control", Confidence: 0.8}, {Intent: "query_weather", Confidence: 0.1}},
			})
		case "/api/v1/analyze":
			writeBody(w, http.StatusOK, nlu.AnalysisResult{
				Intent:      "device_control",
				Entities:    []*nlu.Entity{{Type: nlu.TypeDevice, Raw: "bơm"}},
				EntityCount: 1,
			})
		}
	})

	ir, err := c.Intent().Classify(context.Background(), "bật bơm", 2)
	require.NoError(t, err)
	assert.Equal(t, "device_control", ir.Intent)
	assert.Len(t, ir.AllIntents, 2)

	ar, err := c.Intent().Analyze(context.Background(), "bật bơm", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, ar.EntityCount)
}

func TestIntentClient_RejectsNegativeTopK(t *testing.T) {
	c, _ := NewClient("http://nlu.local", "")
	_, err := c.Intent().Classify(context.Background(), "bật bơm", -1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "top_k")
}

func TestClient_Probes(t *testing.T) {
	var ready atomic.Bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			writeBody(w, http.StatusOK, nlu.Liveness{Status: "alive", Version: "1.2.0"})
		case "/readyz":
			if ready.Load() {
				writeBody(w, http.StatusOK, nlu.Readiness{Status: "ready"})
				return
			}
			writeBody(w, http.StatusServiceUnavailable, nlu.Readiness{
				Status:     "not_ready",
				Components: map[string]nlu.ComponentStatus{"model": {Status: "down", Critical: true}},
			})
		}
	})
	ctx := context.Background()

	live, err := c.Liveness(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", live.Version)

	rd, err := c.Readiness(ctx)
	require.NoError(t, err, "503 carries a report, not an error")
	assert.False(t, rd.Ready())
	assert.Equal(t, []string{"model"}, rd.Down())

	ready.Store(true)
	rd, err = c.Readiness(ctx)
	require.NoError(t, err)
	assert.True(t, rd.Ready())
}

//Personal.AI order the ending
