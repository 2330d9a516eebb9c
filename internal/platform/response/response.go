// Package response writes JSON API responses.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error   string            `json:"error"`
	Code    errors.ErrorCode  `json:"code"`
	Field   string            `json:"field,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// JSON sends data with the given status.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error maps err onto its HTTP status and error envelope. Internal errors
// are reported without their cause.
func Error(w http.ResponseWriter, err error) {
	body := ErrorBody{
		Error: errors.PublicMessage(err),
		Code:  errors.CodeOf(err),
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) && appErr.Code != errors.ErrCodeInternal {
		body.Field = appErr.Field
		body.Details = appErr.Details
	}
	JSON(w, errors.HTTPStatus(err), body)
}
