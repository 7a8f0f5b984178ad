package e2e_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AgriBot-NLU/pkg/client"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
	"github.com/turtacn/AgriBot-NLU/pkg/types/nlu"
)

func requireEmbedded(t *testing.T) {
	t.Helper()
	if !env.embedded {
		t.Skip("asserts rules-only output; embedded server only")
	}
}

func TestE2E_Probes(t *testing.T) {
	ctx := context.Background()
	live, err := env.sdkClient.Liveness(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alive", live.Status)

	ready, err := env.sdkClient.Readiness(ctx)
	require.NoError(t, err)
	assert.True(t, ready.Ready(), "down: %v", ready.Down())
}

func TestE2E_Extract_RulesOnly(t *testing.T) {
	requireEmbedded(t)
	text := "bật máy bơm 15 phút"

	res, err := env.sdkClient.NER().Extract(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, nlu.PathRulesOnly, res.DecodePath)
	assert.Equal(t, []string{"máy bơm", "15 phút"}, entityRaws(res.Entities))
	assert.Equal(t, len(res.Entities), res.EntityCount)
	assert.NotNil(t, res.First(nlu.TypeDevice))
	assert.NotNil(t, res.First(nlu.TypeDuration))
}

func TestE2E_Extract_SpansIndexOriginalText(t *testing.T) {
	text := "Trồng cà chua ở khu A, tưới 2 lần mỗi ngày"
	res, err := env.sdkClient.NER().Extract(context.Background(), text)
	require.NoError(t, err)

	runes := []rune(text)
	for i, e := range res.Entities {
		require.True(t, e.Start >= 0 && e.Start < e.End && e.End <= len(runes), "span %d out of range", i)
		assert.Equal(t, string(runes[e.Start:e.End]), e.Raw, "span %d", i)
		assert.True(t, e.Confidence > 0 && e.Confidence <= 1)
		if i > 0 {
			prev := res.Entities[i-1]
			assert.False(t, prev.Overlaps(*e), "spans %d and %d overlap", i-1, i)
			assert.LessOrEqual(t, prev.Start, e.Start, "spans are ordered")
		}
	}
}

func TestE2E_ExtractBatch_KeepsOrder(t *testing.T) {
	texts := []string{"trồng cà chua ở khu A", "bật máy bơm 15 phút", "không có gì"}
	res, err := env.sdkClient.NER().ExtractBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Equal(t, len(texts), res.Count)
	for i, r := range res.Results {
		assert.Equal(t, texts[i], r.Text)
	}
}

func TestE2E_ExtractBatch_TooLarge(t *testing.T) {
	texts := make([]string, env.maxBatch+1)
	for i := range texts {
		texts[i] = "tưới rau"
	}
	_, err := env.sdkClient.NER().ExtractBatch(context.Background(), texts)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errors.ErrCodeBatchTooLarge.String(), apiErr.Code)
}

func TestE2E_Extract_TextTooLong(t *testing.T) {
	body := nlu.TextRequest{Text: strings.Repeat("ư", env.maxText+1)}
	require.Greater(t, utf8.RuneCountInString(body.Text), env.maxText)

	resp := doPost(t, "/api/v1/ner/extract", body)
	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		assert.Equal(t, errors.ErrCodeTextTooLong.String(), decodeError(t, resp).Code)
		return
	}
	t.Fatalf("expected 413, got %d", resp.StatusCode)
}

func TestE2E_Extract_BadRequests(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"malformed json", `{"text":`, http.StatusBadRequest},
		{"unknown field", `{"text":"lúa","topk":3}`, http.StatusBadRequest},
		{"two objects", `{"text":"a"}{"text":"b"}`, http.StatusBadRequest},
		{"blank text", `{"text":"   "}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRaw(t, http.MethodPost, "/api/v1/ner/extract", tc.body, env.apiKey)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.NotEmpty(t, decodeError(t, resp).Code)
		})
	}
}

func TestE2E_Auth(t *testing.T) {
	if env.apiKey == "" {
		t.Skip("server runs without API keys")
	}
	resp := doRaw(t, http.MethodGet, "/api/v1/ner/labels", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRaw(t, http.MethodGet, "/api/v1/ner/labels", "", "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	anon, err := client.NewClient(env.baseURL, "", client.WithRetryMax(0))
	require.NoError(t, err)
	_, err = anon.NER().Labels(context.Background())
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsUnauthorized())

	// probes stay public
	resp = doRaw(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestE2E_IntentAndAnalyze(t *testing.T) {
	requireEmbedded(t)
	ctx := context.Background()

	ir, err := env.sdkClient.Intent().Classify(ctx, "bật máy bơm giúp tôi", 2)
	require.NoError(t, err)
	assert.Equal(t, "device_control", ir.Intent)
	assert.LessOrEqual(t, len(ir.AllIntents), 2)

	ar, err := env.sdkClient.Intent().Analyze(ctx, "bật máy bơm 15 phút", 0)
	require.NoError(t, err)
	assert.Equal(t, "device_control", ar.Intent)
	assert.Equal(t, []string{"máy bơm", "15 phút"}, entityRaws(ar.Entities))
}

func TestE2E_LabelsAndRules(t *testing.T) {
	ctx := context.Background()
	labels, err := env.sdkClient.NER().Labels(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, labels.Labels)
	assert.Equal(t, "O", labels.Labels[0])
	assert.NotEmpty(t, labels.Fingerprint)

	again, err := env.sdkClient.NER().Labels(ctx)
	require.NoError(t, err)
	assert.Equal(t, labels.Fingerprint, again.Fingerprint, "fingerprint is stable")

	rules, err := env.sdkClient.NER().Rules(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rules)
	assert.Equal(t, nlu.TypeCrop, rules[0].Type)
}

func TestE2E_UnknownRoute(t *testing.T) {
	resp := doRaw(t, http.MethodGet, "/api/v1/nope", "", env.apiKey)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

//Personal.AI order the ending
