package service

import (
	"context"
	"errors"
	"sort"

	ua "github.com/mssola/useragent"

	"veritrail/internal/identity/models"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/sentinel"
	"veritrail/pkg/requestcontext"
)

// ListSessions returns the caller's live sessions, most recently active
// first. Sessions past their absolute expiry are filtered out rather than
// surfaced as dead entries.
func (s *Service) ListSessions(ctx context.Context, identity *models.Identity) ([]models.SessionSummary, error) {
	if identity == nil || identity.Anonymous() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing credential")
	}

	sessions, err := s.sessions.ListByUser(ctx, identity.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sessions")
	}

	now := requestcontext.Now(ctx)
	summaries := make([]models.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		if !sess.ExpiresAt.After(now) {
			continue
		}
		summaries = append(summaries, models.SessionSummary{
			SessionID:    sess.ID,
			Device:       DeviceLabel(sess.UserAgent),
			IPAddress:    sess.IPAddress,
			CreatedAt:    sess.CreatedAt,
			LastActivity: sess.LastActivityAt,
			IsCurrent:    sess.ID == identity.SessionID,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries, nil
}

// RevokeSession closes one of the caller's sessions. Another user's
// session answers with the same not-found as a missing one, so the
// response does not reveal whether the session exists for someone else.
func (s *Service) RevokeSession(ctx context.Context, identity *models.Identity, sessionID id.SessionID) error {
	if identity == nil || identity.Anonymous() {
		return dErrors.New(dErrors.CodeUnauthorized, "missing credential")
	}
	if sessionID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "session ID required")
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if session.UserID != identity.UserID {
		s.logger.WarnContext(ctx, "session revoke rejected",
			"user_id", identity.UserID,
			"session_id", sessionID,
			"reason", "owner_mismatch",
		)
		return dErrors.New(dErrors.CodeNotFound, "session not found")
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke session")
	}
	return nil
}

// DeviceLabel renders a user-agent string as a short human-readable
// device description for session listings.
func DeviceLabel(rawUA string) string {
	if rawUA == "" {
		return "Unknown Device"
	}

	parsed := ua.New(rawUA)
	browser, _ := parsed.Browser()
	os := parsed.OSInfo().Name

	switch {
	case browser != "" && os != "":
		return browser + " on " + os
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return "Unknown Device"
	}
}
