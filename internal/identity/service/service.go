// Package service implements the authentication operations: password
// login, logout, and session management.
package service

import (
	"context"
	"log/slog"
	"time"

	"veritrail/internal/identity/lockout"
	"veritrail/internal/identity/store"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
)

const defaultSessionTTL = 12 * time.Hour

// TokenMinter issues a signed bearer token for a session.
type TokenMinter interface {
	Mint(userID id.UserID, sessionID id.SessionID, expiresIn time.Duration) (string, error)
}

// Auditor records authentication activity on the audit trail. Recording is
// fire-and-forget; implementations must never surface failures here.
type Auditor interface {
	RecordLogin(ctx context.Context, userID id.UserID, userName string)
	RecordLogout(ctx context.Context, userID id.UserID, userName string)
}

// Service is the authentication façade. Storage and transport concerns
// live in other layers.
type Service struct {
	users      store.UserStore
	sessions   store.SessionStore
	tokens     TokenMinter
	auditor    Auditor
	guard      *lockout.Guard
	sessionTTL time.Duration
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSessionTTL overrides the absolute session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

// WithAuditor attaches an audit recorder. Without one, logins and logouts
// are not written to the trail.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// WithLockoutGuard replaces the default brute-force guard, mainly so tests
// can tighten its thresholds.
func WithLockoutGuard(g *lockout.Guard) Option {
	return func(s *Service) {
		if g != nil {
			s.guard = g
		}
	}
}

func New(users store.UserStore, sessions store.SessionStore, tokens TokenMinter, logger *slog.Logger, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user store is required")
	}
	if sessions == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session store is required")
	}
	if tokens == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "token minter is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		guard:      lockout.NewGuard(),
		sessionTTL: defaultSessionTTL,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}
