package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"veritrail/internal/identity/lockout"
	"veritrail/internal/identity/models"
	"veritrail/internal/identity/service"
	"veritrail/internal/identity/store"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/requestcontext"
)

type stubMinter struct {
	token string
	err   error
}

func (m stubMinter) Mint(id.UserID, id.SessionID, time.Duration) (string, error) {
	return m.token, m.err
}

type recordingAuditor struct {
	logins  []string
	logouts []string
}

func (a *recordingAuditor) RecordLogin(_ context.Context, _ id.UserID, userName string) {
	a.logins = append(a.logins, userName)
}

func (a *recordingAuditor) RecordLogout(_ context.Context, _ id.UserID, userName string) {
	a.logouts = append(a.logouts, userName)
}

type AuthServiceSuite struct {
	suite.Suite

	users    *store.InMemoryUserStore
	sessions *store.InMemorySessionStore
	auditor  *recordingAuditor
	svc      *service.Service

	now  time.Time
	ctx  context.Context
	user models.User
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	s.users = store.NewInMemoryUserStore()
	s.sessions = store.NewInMemorySessionStore()
	s.auditor = &recordingAuditor{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.New(s.users, s.sessions, stubMinter{token: "signed-token"}, logger,
		service.WithSessionTTL(time.Hour),
		service.WithAuditor(s.auditor),
	)
	s.Require().NoError(err)
	s.svc = svc

	s.now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	s.Require().NoError(err)
	s.user = models.User{
		ID:           id.NewUserID(),
		Email:        "dana@example.com",
		FirstName:    "Dana",
		LastName:     "Reyes",
		Status:       models.UserStatusActive,
		PasswordHash: string(hash),
	}
	s.Require().NoError(s.users.Save(s.ctx, s.user))
}

func (s *AuthServiceSuite) TestLoginOpensSession() {
	result, err := s.svc.Login(s.ctx, "dana@example.com", "correct horse")
	s.Require().NoError(err)

	s.Equal("signed-token", result.Token)
	s.Equal(int64(3600), result.ExpiresIn)
	s.Equal(s.user.ID, result.UserID)
	s.Equal("Dana Reyes", result.Name)

	session, err := s.sessions.FindByID(s.ctx, result.SessionID)
	s.Require().NoError(err)
	s.Equal(s.user.ID, session.UserID)
	s.Equal(s.now.Add(time.Hour), session.ExpiresAt)

	s.Equal([]string{"Dana Reyes"}, s.auditor.logins)
}

func (s *AuthServiceSuite) TestLoginUnknownEmailAndWrongPasswordLookAlike() {
	_, unknownErr := s.svc.Login(s.ctx, "nobody@example.com", "whatever")
	_, wrongErr := s.svc.Login(s.ctx, "dana@example.com", "wrong password")

	s.True(dErrors.HasCode(unknownErr, dErrors.CodeUnauthorized))
	s.True(dErrors.HasCode(wrongErr, dErrors.CodeUnauthorized))
	s.Equal(unknownErr.Error(), wrongErr.Error())
	s.Empty(s.auditor.logins)
}

func (s *AuthServiceSuite) TestLoginLockedAccount() {
	locked := s.user
	locked.Status = models.UserStatusLocked
	s.Require().NoError(s.users.Save(s.ctx, locked))

	_, err := s.svc.Login(s.ctx, "dana@example.com", "correct horse")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.ErrorContains(err, "locked")
}

func (s *AuthServiceSuite) TestLoginHidesAccountStatusBehindPassword() {
	locked := s.user
	locked.Status = models.UserStatusLocked
	s.Require().NoError(s.users.Save(s.ctx, locked))

	// Without the password, a locked account answers exactly like an
	// unknown one.
	_, lockedErr := s.svc.Login(s.ctx, "dana@example.com", "wrong password")
	_, unknownErr := s.svc.Login(s.ctx, "nobody@example.com", "wrong password")
	s.True(dErrors.HasCode(lockedErr, dErrors.CodeUnauthorized))
	s.Equal(unknownErr.Error(), lockedErr.Error())
}

func (s *AuthServiceSuite) TestLoginRequiresCredentials() {
	_, err := s.svc.Login(s.ctx, "", "pw")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *AuthServiceSuite) TestLoginLocksOutAfterRepeatedFailures() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.New(s.users, s.sessions, stubMinter{token: "signed-token"}, logger,
		service.WithLockoutGuard(lockout.NewGuard(lockout.WithMaxFailures(3))),
	)
	s.Require().NoError(err)

	for range 3 {
		_, err := svc.Login(s.ctx, "dana@example.com", "wrong password")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	}

	// Even the right password is refused while the lock holds.
	_, err = svc.Login(s.ctx, "dana@example.com", "correct horse")
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.ErrorContains(err, "too many failed login attempts")
}

func (s *AuthServiceSuite) TestLoginSuccessResetsFailureCount() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.New(s.users, s.sessions, stubMinter{token: "signed-token"}, logger,
		service.WithLockoutGuard(lockout.NewGuard(lockout.WithMaxFailures(3))),
	)
	s.Require().NoError(err)

	for range 2 {
		_, err := svc.Login(s.ctx, "dana@example.com", "wrong password")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	}
	_, err = svc.Login(s.ctx, "dana@example.com", "correct horse")
	s.Require().NoError(err)

	// The counter restarted, so two more misses stay under the threshold.
	for range 2 {
		_, err := svc.Login(s.ctx, "dana@example.com", "wrong password")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	}
}

func (s *AuthServiceSuite) TestLogoutIdempotent() {
	result, err := s.svc.Login(s.ctx, "dana@example.com", "correct horse")
	s.Require().NoError(err)

	identity := &models.Identity{
		UserID:    s.user.ID,
		Email:     s.user.Email,
		SessionID: result.SessionID,
	}
	s.Require().NoError(s.svc.Logout(s.ctx, identity))
	_, err = s.sessions.FindByID(s.ctx, result.SessionID)
	s.Error(err)

	// Second logout against the same, now-deleted session still succeeds.
	s.Require().NoError(s.svc.Logout(s.ctx, identity))
	s.Len(s.auditor.logouts, 2)
}

func (s *AuthServiceSuite) TestListSessionsOrdersAndMarksCurrent() {
	older := models.Session{
		ID:             id.NewSessionID(),
		UserID:         s.user.ID,
		CreatedAt:      s.now.Add(-2 * time.Hour),
		LastActivityAt: s.now.Add(-90 * time.Minute),
		ExpiresAt:      s.now.Add(time.Hour),
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
	current := models.Session{
		ID:             id.NewSessionID(),
		UserID:         s.user.ID,
		CreatedAt:      s.now.Add(-time.Hour),
		LastActivityAt: s.now.Add(-time.Minute),
		ExpiresAt:      s.now.Add(time.Hour),
	}
	expired := models.Session{
		ID:             id.NewSessionID(),
		UserID:         s.user.ID,
		CreatedAt:      s.now.Add(-48 * time.Hour),
		LastActivityAt: s.now.Add(-47 * time.Hour),
		ExpiresAt:      s.now.Add(-36 * time.Hour),
	}
	for _, sess := range []models.Session{older, current, expired} {
		s.Require().NoError(s.sessions.Save(s.ctx, sess))
	}

	identity := &models.Identity{UserID: s.user.ID, SessionID: current.ID}
	summaries, err := s.svc.ListSessions(s.ctx, identity)
	s.Require().NoError(err)

	s.Require().Len(summaries, 2)
	s.Equal(current.ID, summaries[0].SessionID)
	s.True(summaries[0].IsCurrent)
	s.False(summaries[1].IsCurrent)
	s.Contains(summaries[1].Device, "Chrome")
}

func (s *AuthServiceSuite) TestRevokeSessionOwnershipEnforced() {
	mine := models.Session{
		ID:             id.NewSessionID(),
		UserID:         s.user.ID,
		CreatedAt:      s.now,
		LastActivityAt: s.now,
		ExpiresAt:      s.now.Add(time.Hour),
	}
	theirs := models.Session{
		ID:             id.NewSessionID(),
		UserID:         id.NewUserID(),
		CreatedAt:      s.now,
		LastActivityAt: s.now,
		ExpiresAt:      s.now.Add(time.Hour),
	}
	s.Require().NoError(s.sessions.Save(s.ctx, mine))
	s.Require().NoError(s.sessions.Save(s.ctx, theirs))

	identity := &models.Identity{UserID: s.user.ID, SessionID: mine.ID}

	foreignErr := s.svc.RevokeSession(s.ctx, identity, theirs.ID)
	s.True(dErrors.HasCode(foreignErr, dErrors.CodeNotFound))

	// Someone else's session and a nonexistent one are indistinguishable.
	missingErr := s.svc.RevokeSession(s.ctx, identity, id.NewSessionID())
	s.True(dErrors.HasCode(missingErr, dErrors.CodeNotFound))
	s.Equal(missingErr.Error(), foreignErr.Error())

	// The foreign session is untouched.
	_, err := s.sessions.FindByID(s.ctx, theirs.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.svc.RevokeSession(s.ctx, identity, mine.ID))
	_, err = s.sessions.FindByID(s.ctx, mine.ID)
	s.Error(err)
}

func TestDeviceLabel(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{
			name: "empty",
			ua:   "",
			want: "Unknown Device",
		},
		{
			name: "chrome on mac",
			ua:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want: "Chrome on Mac OS X",
		},
		{
			name: "firefox on linux",
			ua:   "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want: "Firefox on Linux",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := service.DeviceLabel(tt.ua); got != tt.want {
				t.Fatalf("DeviceLabel(%q) = %q, want %q", tt.ua, got, tt.want)
			}
		})
	}
}
