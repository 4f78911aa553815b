package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"veritrail/internal/identity/models"
	"veritrail/internal/transport/middleware/auth"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/httputil"
	"veritrail/pkg/requestcontext"
)

// RolesService is the role administration surface the HTTP layer depends on.
type RolesService interface {
	Create(ctx context.Context, actor *models.Identity, role models.Role) (models.Role, error)
	Update(ctx context.Context, actor *models.Identity, roleID id.RoleID, displayName string, permissions []models.Permission) (models.Role, error)
	Delete(ctx context.Context, actor *models.Identity, roleID id.RoleID) error
	Get(ctx context.Context, roleID id.RoleID) (models.Role, error)
	List(ctx context.Context) ([]models.Role, error)
	Assign(ctx context.Context, actor *models.Identity, assignment models.RoleAssignment) error
	Revoke(ctx context.Context, actor *models.Identity, userID id.UserID, roleID id.RoleID) error
}

type RolesHandler struct {
	roles  RolesService
	logger *slog.Logger
}

func NewRolesHandler(roles RolesService, logger *slog.Logger) *RolesHandler {
	return &RolesHandler{roles: roles, logger: logger}
}

type createRoleRequest struct {
	Name        string              `json:"name"`
	DisplayName string              `json:"display_name"`
	Level       int                 `json:"level"`
	Permissions []models.Permission `json:"permissions"`
}

type updateRoleRequest struct {
	DisplayName string              `json:"display_name"`
	Permissions []models.Permission `json:"permissions"`
}

type assignRoleRequest struct {
	UserID    id.UserID    `json:"user_id"`
	EntityID  *id.EntityID `json:"entity_id,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

func validatePermissions(perms []models.Permission) error {
	for _, p := range perms {
		if !govalidator.StringLength(p.Resource, "1", "100") || !govalidator.StringLength(p.Action, "1", "100") {
			return dErrors.New(dErrors.CodeInvalidInput, "permission resource and action are required")
		}
		switch p.Scope {
		case models.ScopeOwn, models.ScopeTeam, models.ScopeEntity, models.ScopeAll:
		default:
			return dErrors.New(dErrors.CodeInvalidInput, "invalid permission scope")
		}
	}
	return nil
}

func (h *RolesHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[createRoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := validatePermissions(req.Permissions); err != nil {
		httputil.WriteError(w, err)
		return
	}

	role, err := h.roles.Create(ctx, auth.IdentityFromContext(ctx), models.Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Level:       req.Level,
		Permissions: req.Permissions,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, role)
}

func (h *RolesHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, err := id.ParseRoleID(chi.URLParam(r, "roleID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid role ID"))
		return
	}
	req, ok := httputil.Decode[updateRoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := validatePermissions(req.Permissions); err != nil {
		httputil.WriteError(w, err)
		return
	}

	role, err := h.roles.Update(ctx, auth.IdentityFromContext(ctx), roleID, req.DisplayName, req.Permissions)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, role)
}

func (h *RolesHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, err := id.ParseRoleID(chi.URLParam(r, "roleID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid role ID"))
		return
	}
	if err := h.roles.Delete(ctx, auth.IdentityFromContext(ctx), roleID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RolesHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, err := id.ParseRoleID(chi.URLParam(r, "roleID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid role ID"))
		return
	}
	role, err := h.roles.Get(ctx, roleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, role)
}

func (h *RolesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": roles})
}

func (h *RolesHandler) handleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, err := id.ParseRoleID(chi.URLParam(r, "roleID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid role ID"))
		return
	}
	req, ok := httputil.Decode[assignRoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if req.UserID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "user_id is required"))
		return
	}

	err = h.roles.Assign(ctx, auth.IdentityFromContext(ctx), models.RoleAssignment{
		UserID:    req.UserID,
		RoleID:    roleID,
		EntityID:  req.EntityID,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RolesHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, err := id.ParseRoleID(chi.URLParam(r, "roleID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid role ID"))
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user ID"))
		return
	}
	if err := h.roles.Revoke(ctx, auth.IdentityFromContext(ctx), userID, roleID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
