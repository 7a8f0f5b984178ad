package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/AgriBot-NLU/internal/application/nlu"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

// RequestMeta copies the chi request id into the NLU request metadata and
// echoes it to the client. It must run after chimw.RequestID.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimw.GetReqID(r.Context())
		if id != "" {
			w.Header().Set(RequestIDHeader, id)
		}
		ctx := nlu.WithRequestMeta(r.Context(), nlu.RequestMeta{RequestID: id, Source: nlu.SourceHTTP})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

//Personal.AI order the ending
