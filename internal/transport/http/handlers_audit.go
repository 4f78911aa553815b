package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"veritrail/internal/audittrail"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/httputil"
)

const maxAuditPageSize = 500

// AuditReader is the read side of the audit log the HTTP layer depends on.
type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]audittrail.Entry, error)
	ListByActor(ctx context.Context, userID id.UserID, limit int) ([]audittrail.Entry, error)
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]audittrail.Entry, error)
}

type AuditHandler struct {
	audit  AuditReader
	logger *slog.Logger
}

func NewAuditHandler(audit AuditReader, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// handleList serves the audit log, newest first. Filters are mutually
// exclusive: actor_id wins over resource when both are present.
func (h *AuditHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit, err := pageLimit(q.Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var entries []audittrail.Entry
	switch {
	case q.Get("actor_id") != "":
		actorID, err := id.ParseUserID(q.Get("actor_id"))
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid actor_id"))
			return
		}
		entries, err = h.audit.ListByActor(ctx, actorID, limit)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	case q.Get("resource") != "":
		entries, err = h.audit.ListByResource(ctx, q.Get("resource"), q.Get("resource_id"), limit)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	default:
		entries, err = h.audit.ListRecent(ctx, limit)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	if entries == nil {
		entries = []audittrail.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": entries})
}

func pageLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
	}
	if limit > maxAuditPageSize {
		limit = maxAuditPageSize
	}
	return limit, nil
}
