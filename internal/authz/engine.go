// Package authz decides, per request, whether a resolved identity may
// perform an action on a resource. Decisions are deny-by-default and
// fail closed: a store error during evaluation surfaces as an internal
// error, never as an allow.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"veritrail/internal/authz/metrics"
	"veritrail/internal/authz/resource"
	"veritrail/internal/identity/models"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/sentinel"
)

const (
	outcomeAllow = "allow"
	outcomeDeny  = "deny"
	outcomeError = "error"
)

// Pair names one (resource, action) check for the composite forms.
type Pair struct {
	Resource string
	Action   string
}

// Options narrow a single authorization check to a target instance.
type Options struct {
	targetEntity *id.EntityID
	allowOwner   bool
	ownerType    resource.Type
	ownerID      string
}

// Option configures one Authorize call.
type Option func(*Options)

// WithTargetEntity supplies the entity the target instance belongs to.
// Entity-scoped grants match against it. Single-resource endpoints must
// supply it; list endpoints pre-filter by entity instead.
func WithTargetEntity(entityID id.EntityID) Option {
	return func(o *Options) { o.targetEntity = &entityID }
}

// WithOwnership enables the ownership fallback: when no role permission
// grants access, the target instance is loaded and access is allowed if
// the caller owns it.
func WithOwnership(t resource.Type, rawID string) Option {
	return func(o *Options) {
		o.allowOwner = true
		o.ownerType = t
		o.ownerID = rawID
	}
}

// Engine evaluates authorization decisions. It is stateless: a pure
// function of the identity's grants plus read-only registry lookups, so
// identical inputs against unchanged stores always produce identical
// decisions.
type Engine struct {
	registry *resource.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMetrics attaches decision metrics.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func New(registry *resource.Registry, logger *slog.Logger, opts ...EngineOption) (*Engine, error) {
	if registry == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "resource registry is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		registry: registry,
		logger:   logger,
		tracer:   otel.Tracer("veritrail/internal/authz"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Authorize decides whether the identity may perform action on the
// resource type. A nil return is ALLOW; CodeForbidden is a policy DENY;
// CodeInternal is an evaluation failure (fail closed).
//
// The deny message names only the action and resource the caller already
// knows. It never says which rule was closest to matching and never
// reveals whether a target instance exists.
func (e *Engine) Authorize(ctx context.Context, identity *models.Identity, res, action string, opts ...Option) error {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "authz.Authorize", trace.WithAttributes(
		attribute.String("authz.resource", res),
		attribute.String("authz.action", action),
	))
	defer span.End()
	defer e.metrics.ObserveAuthorize(start)

	var options Options
	for _, opt := range opts {
		opt(&options)
	}

	outcome, err := e.evaluate(ctx, identity, res, action, options)
	span.SetAttributes(attribute.String("authz.outcome", outcome))
	e.metrics.RecordDecision(res, action, outcome)

	if outcome == outcomeError {
		e.logger.ErrorContext(ctx, "authorization evaluation failed",
			"resource", res,
			"action", action,
			"error", err,
		)
	}
	return err
}

func (e *Engine) evaluate(ctx context.Context, identity *models.Identity, res, action string, options Options) (string, error) {
	if identity == nil || identity.Anonymous() {
		return outcomeDeny, deny(res, action)
	}

	// The single hard-coded override. Every other rule is data-driven.
	if identity.IsSystemAdmin() {
		return outcomeAllow, nil
	}

	for _, grant := range identity.Grants {
		if grant.Resource != res || grant.Action != action {
			continue
		}
		switch grant.Scope {
		case models.ScopeAll:
			return outcomeAllow, nil
		case models.ScopeEntity, models.ScopeTeam:
			// No target context means the endpoint pre-filters by entity
			// (list endpoints); single-resource endpoints supply the
			// entity so this branch cannot bypass scoping.
			if options.targetEntity == nil {
				return outcomeAllow, nil
			}
			if grant.EntityID != nil && *grant.EntityID == *options.targetEntity {
				return outcomeAllow, nil
			}
		case models.ScopeOwn:
			// Resolved exclusively by the ownership fallback below.
		}
	}

	if options.allowOwner {
		record, err := e.registry.Load(ctx, options.ownerType, options.ownerID)
		if err != nil {
			// A missing target denies like any other miss; saying "not
			// found" here would leak existence through authorization
			// probing.
			if errors.Is(err, sentinel.ErrNotFound) {
				return outcomeDeny, deny(res, action)
			}
			return outcomeError, dErrors.Wrap(err, dErrors.CodeInternal, "authorization evaluation failed")
		}
		if !record.OwnerID.IsNil() && record.OwnerID == identity.UserID {
			return outcomeAllow, nil
		}
	}

	return outcomeDeny, deny(res, action)
}

// AuthorizeAll allows only if every pair individually allows,
// short-circuiting on the first deny.
func (e *Engine) AuthorizeAll(ctx context.Context, identity *models.Identity, pairs []Pair) error {
	for _, p := range pairs {
		if err := e.Authorize(ctx, identity, p.Resource, p.Action); err != nil {
			return err
		}
	}
	return nil
}

// AuthorizeAny allows if at least one pair allows. An evaluation failure
// on any pair fails the whole check; a failed lookup must not let the
// remaining pairs decide alone.
func (e *Engine) AuthorizeAny(ctx context.Context, identity *models.Identity, pairs []Pair) error {
	if len(pairs) == 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "no pairs to authorize")
	}

	var lastDeny error
	for _, p := range pairs {
		err := e.Authorize(ctx, identity, p.Resource, p.Action)
		if err == nil {
			return nil
		}
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			return err
		}
		lastDeny = err
	}
	return lastDeny
}

func deny(res, action string) error {
	return dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("cannot %s %s", action, res))
}
