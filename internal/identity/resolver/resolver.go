// Package resolver turns a bearer credential into a resolved Identity:
// verified token, live session, active account, and the union of
// permissions over the caller's non-expired role assignments.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"veritrail/internal/identity/models"
	"veritrail/internal/identity/store"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/sentinel"
	strutil "veritrail/pkg/platform/strings"
	"veritrail/pkg/requestcontext"
)

// TokenVerifier checks a bearer token's signature and expiry and returns
// the embedded identifiers.
type TokenVerifier interface {
	Verify(tokenString string) (id.UserID, id.SessionID, error)
}

// Resolver implements identity resolution for protected routes.
type Resolver struct {
	tokens      TokenVerifier
	users       store.UserStore
	sessions    store.SessionStore
	assignments store.AssignmentStore
	idleWindow  time.Duration
	logger      *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithIdleWindow sets the session inactivity window. Zero disables the
// inactivity check.
func WithIdleWindow(window time.Duration) Option {
	return func(r *Resolver) { r.idleWindow = window }
}

func New(tokens TokenVerifier, users store.UserStore, sessions store.SessionStore, assignments store.AssignmentStore, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		tokens:      tokens,
		users:       users,
		sessions:    sessions,
		assignments: assignments,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve validates the credential and loads the caller's identity.
// Permissions are recomputed from role assignments here, not cached at
// login, so role changes take effect on the next request.
func (r *Resolver) Resolve(ctx context.Context, bearerToken string) (*models.Identity, error) {
	if bearerToken == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing credential")
	}

	userID, sessionID, err := r.tokens.Verify(bearerToken)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)

	session, err := r.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if session.UserID != userID {
		// A valid signature referencing someone else's session means the
		// token was minted against stale state; treat as invalid.
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if session.Expired(now, r.idleWindow) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "session expired")
	}

	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if user.Status != models.UserStatusActive {
		return nil, dErrors.New(dErrors.CodeForbidden, "account is not active")
	}

	assignments, err := r.assignments.ListActiveForUser(ctx, userID, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load role assignments")
	}

	identity := &models.Identity{
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: session.ID,
	}
	collectGrants(identity, assignments)

	// Best effort: a failed activity update must not fail the request.
	if err := r.sessions.Touch(ctx, session.ID, now); err != nil {
		r.logger.WarnContext(ctx, "failed to update session activity",
			"session_id", session.ID,
			"error", err,
		)
	}

	return identity, nil
}

// ResolveOptional behaves like Resolve but returns an anonymous identity
// when no credential is presented, for endpoints that personalize without
// requiring auth. A present-but-bad credential is still rejected.
func (r *Resolver) ResolveOptional(ctx context.Context, bearerToken string) (*models.Identity, error) {
	if bearerToken == "" {
		return &models.Identity{}, nil
	}
	return r.Resolve(ctx, bearerToken)
}

// collectGrants unions role names and permission triples across
// assignments. The flat Permissions list deduplicates exact repeats for
// callers that only display them; Grants keeps one entry per assignment
// permission because the same triple bound to different entities is two
// different grants. Distinct scopes for the same resource/action stay
// separate; the engine evaluates them independently.
func collectGrants(identity *models.Identity, assignments []models.RoleAssignment) {
	seenPerms := make(map[models.Permission]struct{})

	roleNames := make([]string, 0, len(assignments))
	for _, assignment := range assignments {
		roleNames = append(roleNames, assignment.Role.Name)
		for _, perm := range assignment.Role.Permissions {
			identity.Grants = append(identity.Grants, models.Grant{
				Permission: perm,
				EntityID:   assignment.EntityID,
			})
			if _, ok := seenPerms[perm]; !ok {
				seenPerms[perm] = struct{}{}
				identity.Permissions = append(identity.Permissions, perm)
			}
		}
	}
	identity.Roles = strutil.DedupeAndTrim(roleNames)
}
