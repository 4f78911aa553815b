// Package httputil centralizes JSON response writing and request decoding
// for HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "veritrail/pkg/domain-errors"
)

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// WriteError translates a coded error into a JSON error response.
// Internal and unavailable errors omit the description so storage failures
// never leak details to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := errorResponse{Error: string(code)}

	switch code {
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
		// Keep the cause server-side only.
	default:
		var coded *dErrors.Error
		if ok := asCoded(err, &coded); ok {
			resp.Description = coded.Message()
		}
	}

	WriteJSON(w, dErrors.HTTPStatus(code), resp)
}

func asCoded(err error, target **dErrors.Error) bool {
	for err != nil {
		if coded, ok := err.(*dErrors.Error); ok {
			*target = coded
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// Decode parses a JSON request body into T. On failure it writes a
// bad_request response and returns ok=false; the handler should return
// immediately.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return req, false
	}
	return req, true
}
