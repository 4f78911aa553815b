package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	identitymodels "veritrail/internal/identity/models"
	"veritrail/internal/observations/models"
	"veritrail/internal/observations/service"
	"veritrail/internal/transport/middleware/auth"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/httputil"
	"veritrail/pkg/requestcontext"
)

// ObservationsService is the observation surface the HTTP layer depends on.
type ObservationsService interface {
	Create(ctx context.Context, actor *identitymodels.Identity, input service.CreateInput) (models.Observation, error)
	Get(ctx context.Context, actor *identitymodels.Identity, obsID id.ObservationID) (models.Observation, error)
	List(ctx context.Context, actor *identitymodels.Identity, entityID *id.EntityID, limit int) ([]models.Observation, error)
	Update(ctx context.Context, actor *identitymodels.Identity, obsID id.ObservationID, input service.UpdateInput) (models.Observation, error)
	ChangeStatus(ctx context.Context, actor *identitymodels.Identity, obsID id.ObservationID, to models.Status) (models.Observation, error)
	Delete(ctx context.Context, actor *identitymodels.Identity, obsID id.ObservationID) error
	AttachEvidence(ctx context.Context, actor *identitymodels.Identity, obsID id.ObservationID, input service.EvidenceInput) (models.Evidence, error)
	ListEvidence(ctx context.Context, actor *identitymodels.Identity, obsID id.ObservationID) ([]models.Evidence, error)
	Export(ctx context.Context, actor *identitymodels.Identity, entityID *id.EntityID) ([]models.Observation, error)
}

type ObservationsHandler struct {
	observations ObservationsService
	logger       *slog.Logger
}

func NewObservationsHandler(observations ObservationsService, logger *slog.Logger) *ObservationsHandler {
	return &ObservationsHandler{observations: observations, logger: logger}
}

type createObservationRequest struct {
	EntityID    *id.EntityID    `json:"entity_id,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Severity    models.Severity `json:"severity"`
}

type updateObservationRequest struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Severity    *models.Severity `json:"severity,omitempty"`
}

type changeStatusRequest struct {
	Status models.Status `json:"status"`
}

type attachEvidenceRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
}

func observationID(r *http.Request) (id.ObservationID, error) {
	obsID, err := id.ParseObservationID(chi.URLParam(r, "observationID"))
	if err != nil {
		return id.ObservationID{}, dErrors.New(dErrors.CodeBadRequest, "invalid observation ID")
	}
	return obsID, nil
}

// entityFilter reads an optional entity_id query parameter.
func entityFilter(r *http.Request) (*id.EntityID, error) {
	raw := r.URL.Query().Get("entity_id")
	if raw == "" {
		return nil, nil
	}
	entityID, err := id.ParseEntityID(raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid entity_id")
	}
	return &entityID, nil
}

func (h *ObservationsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[createObservationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	obs, err := h.observations.Create(ctx, auth.IdentityFromContext(ctx), service.CreateInput{
		EntityID:    req.EntityID,
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, obs)
}

func (h *ObservationsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	obsID, err := observationID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	obs, err := h.observations.Get(ctx, auth.IdentityFromContext(ctx), obsID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, obs)
}

func (h *ObservationsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, err := entityFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := pageLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	observations, err := h.observations.List(ctx, auth.IdentityFromContext(ctx), entityID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if observations == nil {
		observations = []models.Observation{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": observations})
}

func (h *ObservationsHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	obsID, err := observationID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[updateObservationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	obs, err := h.observations.Update(ctx, auth.IdentityFromContext(ctx), obsID, service.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, obs)
}

func (h *ObservationsHandler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	obsID, err := observationID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[changeStatusRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	obs, err := h.observations.ChangeStatus(ctx, auth.IdentityFromContext(ctx), obsID, req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, obs)
}

func (h *ObservationsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	obsID, err := observationID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.observations.Delete(ctx, auth.IdentityFromContext(ctx), obsID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ObservationsHandler) handleAttachEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	obsID, err := observationID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[attachEvidenceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	ev, err := h.observations.AttachEvidence(ctx, auth.IdentityFromContext(ctx), obsID, service.EvidenceInput{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ev)
}

func (h *ObservationsHandler) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	obsID, err := observationID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	evidence, err := h.observations.ListEvidence(ctx, auth.IdentityFromContext(ctx), obsID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if evidence == nil {
		evidence = []models.Evidence{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": evidence})
}

func (h *ObservationsHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, err := entityFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	observations, err := h.observations.Export(ctx, auth.IdentityFromContext(ctx), entityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if observations == nil {
		observations = []models.Observation{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": observations})
}
