// Package httputil holds HTTP helpers shared by handlers and outbound API clients.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Success bool                   `json:"success"`
	Code    string                 `json:"code"`
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteErrorResponse writes a structured error body.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	resp := ErrorResponse{
		Code:    code,
		Error:   message,
		Details: details,
	}
	if r != nil {
		resp.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, status, resp)
}

// WriteError maps err onto its ServiceError presentation. Unknown errors
// become 500 without leaking their text.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("Internal server error", err)
	}
	WriteErrorResponse(w, r, se.HTTPStatus, string(se.Code), se.Message, se.Details)
}

// Unauthorized writes a 401 with an optional message.
func Unauthorized(w http.ResponseWriter, message string) {
	se := errors.Unauthorized(message)
	WriteErrorResponse(w, nil, se.HTTPStatus, string(se.Code), se.Message, nil)
}

// MethodNotAllowed writes a 405.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, http.StatusMethodNotAllowed, string(errors.CodeBadRequest), "method not allowed", nil)
}
