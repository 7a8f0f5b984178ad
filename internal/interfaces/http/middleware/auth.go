package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// APIKeyHeader carries the service key of the chatbot backend.
const APIKeyHeader = "X-API-Key"

type clientIDKey struct{}

// ContextClientID returns the id of the authenticated API key, or "".
func ContextClientID(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}

// APIKeyAuth checks X-API-Key (or a Bearer token) against a static key
// list. Keys are compared in constant time. The id exposed downstream is a
// short digest of the key, never the key itself.
type APIKeyAuth struct {
	keys   [][]byte
	logger logging.Logger
}

// NewAPIKeyAuth returns nil when keys is empty, meaning no authentication.
func NewAPIKeyAuth(keys []string, logger logging.Logger) *APIKeyAuth {
	if len(keys) == 0 {
		return nil
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	a := &APIKeyAuth{logger: logger.Named("auth")}
	for _, k := range keys {
		a.keys = append(a.keys, []byte(k))
	}
	return a
}

// Handler enforces a valid key.
func (a *APIKeyAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeUnauthorized(w, "authentication required")
			return
		}
		if !a.Valid(key) {
			a.logger.Warn("Rejected invalid API key",
				logging.String("path", r.URL.Path), logging.String("remote_addr", r.RemoteAddr))
			writeUnauthorized(w, "invalid API key")
			return
		}
		ctx := context.WithValue(r.Context(), clientIDKey{}, KeyID(key))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Valid reports whether key is one of the configured keys. The gRPC
// interceptor shares it.
func (a *APIKeyAuth) Valid(key string) bool {
	candidate := []byte(key)
	ok := 0
	for _, k := range a.keys {
		ok |= subtle.ConstantTimeCompare(k, candidate)
	}
	return ok == 1
}

// KeyID is the first 12 hex characters of the key's SHA-256.
func KeyID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="agrinlu"`)
	WriteError(w, errors.New(errors.ErrCodeUnauthorized, message))
}

//Personal.AI order the ending
