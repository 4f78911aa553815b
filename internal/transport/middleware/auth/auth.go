// Package auth provides the request middleware that resolves the caller's
// identity and the per-route authorization guards.
package auth

import (
	"context"
	"net/http"
	"strings"

	"veritrail/internal/authz"
	"veritrail/internal/identity/models"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/httputil"
	"veritrail/pkg/requestcontext"
)

type identityKey struct{}

// IdentityFromContext returns the resolved identity, or nil when the
// request did not pass through the authentication middleware.
func IdentityFromContext(ctx context.Context) *models.Identity {
	identity, _ := ctx.Value(identityKey{}).(*models.Identity)
	return identity
}

func withIdentity(ctx context.Context, identity *models.Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey{}, identity)
	if !identity.Anonymous() {
		ctx = requestcontext.WithUserID(ctx, identity.UserID)
		ctx = requestcontext.WithSessionID(ctx, identity.SessionID)
	}
	return ctx
}

// Resolver turns a bearer credential into an identity.
type Resolver interface {
	Resolve(ctx context.Context, bearerToken string) (*models.Identity, error)
	ResolveOptional(ctx context.Context, bearerToken string) (*models.Identity, error)
}

// Authenticate rejects requests without a valid credential and stores the
// resolved identity on the request context.
func Authenticate(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolver.Resolve(r.Context(), bearerToken(r))
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

// AuthenticateOptional resolves a credential when present and passes an
// anonymous identity through otherwise. A present-but-bad credential is
// still rejected.
func AuthenticateOptional(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolver.ResolveOptional(r.Context(), bearerToken(r))
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

// Require guards a route behind one (resource, action) check. It must run
// after Authenticate.
func Require(engine *authz.Engine, resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing credential"))
				return
			}
			if err := engine.Authorize(r.Context(), identity, resource, action); err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny guards a route behind a set of (resource, action) pairs with
// OR semantics.
func RequireAny(engine *authz.Engine, pairs ...authz.Pair) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing credential"))
				return
			}
			if err := engine.AuthorizeAny(r.Context(), identity, pairs); err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
