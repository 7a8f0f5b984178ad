package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// ErrorResponse is the JSON body of every error answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError maps err to its HTTP status and writes an ErrorResponse. Errors
// that are not AppErrors, and every 5xx, are masked as internal errors
// unless they carry a code of their own.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		appErr = errors.New(errors.ErrCodeInternal, errors.DefaultMessageForCode(errors.ErrCodeInternal))
	}
	status := errors.HTTPStatusForCode(appErr.Code)
	resp := ErrorResponse{Code: appErr.Code.String(), Message: appErr.Message, Detail: appErr.Detail}
	if status >= http.StatusInternalServerError {
		// 5xx details stay in the logs
		resp.Detail = ""
	}
	WriteJSON(w, status, resp)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

//Personal.AI order the ending
