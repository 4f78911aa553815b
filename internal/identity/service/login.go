package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"veritrail/internal/identity/models"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/sentinel"
	"veritrail/pkg/requestcontext"
)

// LoginResult is what a successful password login yields.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"`
	UserID    id.UserID    `json:"user_id"`
	SessionID id.SessionID `json:"session_id"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
}

// Login verifies a password credential and opens a session. Unknown email
// and wrong password produce the same response so the endpoint does not
// confirm which accounts exist.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if email == "" || password == "" {
		return LoginResult{}, dErrors.New(dErrors.CodeBadRequest, "email and password are required")
	}

	now := requestcontext.Now(ctx)
	guardKey := strings.ToLower(email) + "|" + requestcontext.ClientIP(ctx)
	if retryAfter, locked := s.guard.Check(guardKey, now); locked {
		s.logger.InfoContext(ctx, "login rejected",
			"reason", "locked_out",
			"retry_after", retryAfter,
		)
		return LoginResult{}, dErrors.New(dErrors.CodeRateLimited, "too many failed login attempts")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.guard.RecordFailure(guardKey, now)
			return LoginResult{}, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return LoginResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if s.guard.RecordFailure(guardKey, now) {
			s.logger.WarnContext(ctx, "login lockout triggered", "user_id", user.ID)
		}
		s.logger.InfoContext(ctx, "login rejected",
			"user_id", user.ID,
			"reason", "password_mismatch",
		)
		return LoginResult{}, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	// Account state is only disclosed to a caller holding the correct
	// password; before that, a locked account answers like a wrong one.
	switch user.Status {
	case models.UserStatusActive:
	case models.UserStatusLocked:
		return LoginResult{}, dErrors.New(dErrors.CodeForbidden, "account is locked")
	default:
		return LoginResult{}, dErrors.New(dErrors.CodeForbidden, "account is not active")
	}
	s.guard.Clear(guardKey)

	session := models.Session{
		ID:             id.NewSessionID(),
		UserID:         user.ID,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.sessionTTL),
		IPAddress:      requestcontext.ClientIP(ctx),
		UserAgent:      requestcontext.UserAgent(ctx),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return LoginResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}

	token, err := s.tokens.Mint(user.ID, session.ID, s.sessionTTL)
	if err != nil {
		return LoginResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	if s.auditor != nil {
		s.auditor.RecordLogin(ctx, user.ID, user.DisplayName())
	}
	s.logger.InfoContext(ctx, "login succeeded",
		"user_id", user.ID,
		"session_id", session.ID,
	)

	return LoginResult{
		Token:     token,
		ExpiresIn: int64(s.sessionTTL.Seconds()),
		UserID:    user.ID,
		SessionID: session.ID,
		Name:      user.DisplayName(),
		Email:     user.Email,
	}, nil
}

// Logout closes the caller's session. Deleting an already-gone session is
// not an error; logout is idempotent.
func (s *Service) Logout(ctx context.Context, identity *models.Identity) error {
	if identity == nil || identity.Anonymous() {
		return dErrors.New(dErrors.CodeUnauthorized, "missing credential")
	}

	if err := s.sessions.Delete(ctx, identity.SessionID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to close session")
	}

	if s.auditor != nil {
		s.auditor.RecordLogout(ctx, identity.UserID, identity.Email)
	}
	s.logger.InfoContext(ctx, "logout",
		"user_id", identity.UserID,
		"session_id", identity.SessionID,
	)
	return nil
}
