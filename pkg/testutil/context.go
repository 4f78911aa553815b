package testutil

import (
	"net/http"

	id "veritrail/pkg/domain"
	"veritrail/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context, simulating what the
// auth middleware does for authenticated requests. Invalid IDs are
// silently ignored.
func WithUserID(req *http.Request, userID string) *http.Request {
	if parsed, err := id.ParseUserID(userID); err == nil {
		return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
	}
	return req
}

// WithSessionID adds a session ID to the request context. Invalid IDs are
// silently ignored.
func WithSessionID(req *http.Request, sessionID string) *http.Request {
	if parsed, err := id.ParseSessionID(sessionID); err == nil {
		return req.WithContext(requestcontext.WithSessionID(req.Context(), parsed))
	}
	return req
}

// WithAuth adds both user ID and session ID to the request context, the
// typical state for an authenticated request.
func WithAuth(req *http.Request, userID, sessionID string) *http.Request {
	return WithSessionID(WithUserID(req, userID), sessionID)
}
