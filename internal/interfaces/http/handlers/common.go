// Common helpers for the HTTP handlers.

package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/turtacn/AgriBot-NLU/internal/interfaces/http/middleware"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// decodeJSON reads a single JSON object into dst. Unknown fields are
// rejected so that typos like "top-k" do not pass silently.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case stderrors.As(err, &tooLarge):
			return errors.New(errors.ErrCodeTextTooLong, "request body too large")
		case stderrors.Is(err, io.EOF):
			return errors.New(errors.ErrCodeBadRequest, "request body is required")
		default:
			return errors.Wrap(err, errors.ErrCodeBadRequest, "invalid JSON body").WithDetail(err.Error())
		}
	}
	if dec.More() {
		return errors.New(errors.ErrCodeBadRequest, "request body must contain a single JSON object")
	}
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	middleware.WriteJSON(w, statusCode, data)
}

// writeAppError maps application errors to their HTTP answer.
func writeAppError(w http.ResponseWriter, err error) {
	middleware.WriteError(w, err)
}

//Personal.AI order the ending
