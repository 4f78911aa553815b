package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"veritrail/internal/identity/models"
	"veritrail/internal/identity/service"
	"veritrail/internal/transport/middleware/auth"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/httputil"
	"veritrail/pkg/requestcontext"
)

// AuthService is the authentication surface the HTTP layer depends on.
type AuthService interface {
	Login(ctx context.Context, email, password string) (service.LoginResult, error)
	Logout(ctx context.Context, identity *models.Identity) error
	ListSessions(ctx context.Context, identity *models.Identity) ([]models.SessionSummary, error)
	RevokeSession(ctx context.Context, identity *models.Identity, sessionID id.SessionID) error
}

type AuthHandler struct {
	auth   AuthService
	logger *slog.Logger
}

func NewAuthHandler(auth AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func validateLoginRequest(req loginRequest) error {
	if !govalidator.StringLength(req.Email, "1", "255") || !govalidator.IsEmail(req.Email) {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid email")
	}
	if !govalidator.StringLength(req.Password, "1", "512") {
		return dErrors.New(dErrors.CodeInvalidInput, "password is required")
	}
	return nil
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[loginRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := validateLoginRequest(req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.auth.Logout(ctx, auth.IdentityFromContext(ctx)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessions, err := h.auth.ListSessions(ctx, auth.IdentityFromContext(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": sessions})
}

func (h *AuthHandler) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session ID"))
		return
	}
	if err := h.auth.RevokeSession(ctx, auth.IdentityFromContext(ctx), sessionID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
