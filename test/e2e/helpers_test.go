// Raw HTTP helpers for the cases the SDK rejects before sending.
package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turtacn/AgriBot-NLU/pkg/types/nlu"
)

// doRaw sends body verbatim to path with the configured API key.
func doRaw(t *testing.T, method, path, body, apiKey string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, env.baseURL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := env.httpClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	t.Logf("%s %s -> %d", method, path, resp.StatusCode)
	return resp
}

// doPost marshals body and posts it.
func doPost(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return doRaw(t, http.MethodPost, path, string(data), env.apiKey)
}

// decodeError reads an ErrorResponse body.
func decodeError(t *testing.T, resp *http.Response) nlu.ErrorResponse {
	t.Helper()
	var out nlu.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func entityRaws(es []*nlu.Entity) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.Raw)
	}
	return out
}

//Personal.AI order the ending
