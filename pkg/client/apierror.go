package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/turtacn/AgriBot-NLU/pkg/types/nlu"
)

// APIError is a non-2xx answer of the API. Code, Message and Detail come
// from the server's error body; a body that is not one lands in Message.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	RequestID  string `json:"request_id"`
}

func newAPIError(rep *reply) *APIError {
	e := &APIError{StatusCode: rep.status, RequestID: rep.requestID}
	if len(rep.body) == 0 {
		return e
	}
	var body nlu.ErrorResponse
	if json.Unmarshal(rep.body, &body) == nil && body.Code != "" {
		e.Code, e.Message, e.Detail = body.Code, body.Message, body.Detail
	} else {
		e.Message = string(rep.body)
	}
	return e
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return fmt.Sprintf("agrinlu: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, msg, e.RequestID)
}

// IsBadRequest covers 400 and 413, both caused by the request text.
func (e *APIError) IsBadRequest() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusRequestEntityTooLarge
}

func (e *APIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }
func (e *APIError) IsRateLimited() bool  { return e.StatusCode == http.StatusTooManyRequests }
func (e *APIError) IsUnavailable() bool  { return e.StatusCode == http.StatusServiceUnavailable }
func (e *APIError) IsServerError() bool  { return e.StatusCode >= 500 && e.StatusCode < 600 }

//Personal.AI order the ending
