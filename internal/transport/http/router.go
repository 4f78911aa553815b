// Package httptransport wires the HTTP surface: authentication, role
// administration, observations, and the audit log, behind the shared
// middleware chain.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veritrail/internal/audittrail"
	"veritrail/internal/authz"
	"veritrail/internal/transport/middleware/auth"
	"veritrail/pkg/platform/middleware/metadata"
	"veritrail/pkg/platform/middleware/request"
)

// Deps carries everything the router mounts.
type Deps struct {
	Auth         AuthService
	Roles        RolesService
	Observations ObservationsService
	Audit        AuditReader
	Resolver     auth.Resolver
	Engine       *authz.Engine
	Recorder     *audittrail.Recorder
	Logger       *slog.Logger
}

// NewRouter assembles the full route tree.
//
// The audit middleware wraps only the observation routes: auth, role, and
// audit-log operations record through the explicit helpers instead, so a
// generic entry would be a duplicate.
func NewRouter(deps Deps) http.Handler {
	authHandler := NewAuthHandler(deps.Auth, deps.Logger)
	rolesHandler := NewRolesHandler(deps.Roles, deps.Logger)
	observationsHandler := NewObservationsHandler(deps.Observations, deps.Logger)
	auditHandler := NewAuditHandler(deps.Audit, deps.Logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(deps.Resolver))

			r.Post("/auth/logout", authHandler.handleLogout)
			r.Get("/auth/sessions", authHandler.handleListSessions)
			r.Delete("/auth/sessions/{sessionID}", authHandler.handleRevokeSession)

			r.Route("/roles", func(r chi.Router) {
				r.With(auth.Require(deps.Engine, "role", "read")).Get("/", rolesHandler.handleList)
				r.With(auth.Require(deps.Engine, "role", "read")).Get("/{roleID}", rolesHandler.handleGet)
				r.With(auth.Require(deps.Engine, "role", "create")).Post("/", rolesHandler.handleCreate)
				r.With(auth.Require(deps.Engine, "role", "update")).Put("/{roleID}", rolesHandler.handleUpdate)
				r.With(auth.Require(deps.Engine, "role", "delete")).Delete("/{roleID}", rolesHandler.handleDelete)
				r.With(auth.Require(deps.Engine, "role", "assign")).Post("/{roleID}/assignments", rolesHandler.handleAssign)
				r.With(auth.Require(deps.Engine, "role", "assign")).Delete("/{roleID}/assignments/{userID}", rolesHandler.handleRevoke)
			})

			r.With(auth.Require(deps.Engine, "audit", "read")).Get("/audit-log", auditHandler.handleList)

			r.Route("/observations", func(r chi.Router) {
				if deps.Recorder != nil {
					r.Use(audittrail.Middleware(deps.Recorder))
				}

				r.Get("/", observationsHandler.handleList)
				r.Post("/", observationsHandler.handleCreate)
				r.Post("/export", observationsHandler.handleExport)
				r.Get("/{observationID}", observationsHandler.handleGet)
				r.Put("/{observationID}", observationsHandler.handleUpdate)
				r.Delete("/{observationID}", observationsHandler.handleDelete)
				r.Post("/{observationID}/status", observationsHandler.handleChangeStatus)
				r.Get("/{observationID}/evidence", observationsHandler.handleListEvidence)
				r.Post("/{observationID}/evidence", observationsHandler.handleAttachEvidence)
			})
		})
	})

	return r
}
