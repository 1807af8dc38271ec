// Package httputil writes JSON responses and maps domain error codes to HTTP statuses.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "tcr/pkg/domain-errors"
)

// MaxBodyBytes bounds request bodies decoded by DecodeJSON.
const MaxBodyBytes = 1 << 20

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and writes {"error","error_description"}.
// Internal errors never expose their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	var de *dErrors.Error
	if !errors.As(err, &de) && errors.Is(err, context.DeadlineExceeded) {
		code = dErrors.CodeTimeout
	}
	status := StatusFor(code)
	resp := errorResponse{Error: string(code)}
	if status != http.StatusInternalServerError {
		resp.ErrorDescription = dErrors.MessageOf(err)
	}
	WriteJSON(w, status, resp)
}

// StatusFor is the HTTP status for a domain error code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeInsufficientPayment:
		return http.StatusPaymentRequired
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeUnknownDispute:
		return http.StatusNotFound
	case dErrors.CodeConflict,
		dErrors.CodeInvalidStateTransition,
		dErrors.CodeAlreadyDisputed,
		dErrors.CodeInvalidChallenge,
		dErrors.CodeStillChallengeable,
		dErrors.CodeAlreadyResolved:
		return http.StatusConflict
	case dErrors.CodeCursorOutOfRange:
		return http.StatusRequestedRangeNotSatisfiable
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes a bounded request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return de
		}
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
	}
	return nil
}
