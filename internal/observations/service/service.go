// Package service implements observation lifecycle operations with
// per-operation authorization and audit recording.
package service

import (
	"context"
	"errors"
	"log/slog"

	"veritrail/internal/audittrail"
	"veritrail/internal/authz"
	"veritrail/internal/authz/resource"
	identitymodels "veritrail/internal/identity/models"
	"veritrail/internal/observations/models"
	"veritrail/internal/observations/store"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/sentinel"
	"veritrail/pkg/requestcontext"
)

// Authorizer decides whether an identity may perform an action on a
// resource. Implemented by the authorization engine.
type Authorizer interface {
	Authorize(ctx context.Context, identity *identitymodels.Identity, res, action string, opts ...authz.Option) error
}

// Auditor records lifecycle events that carry more context than the
// generic request middleware can synthesize. Recording is fire-and-forget.
type Auditor interface {
	RecordStatusChange(ctx context.Context, actor audittrail.Actor, resourceType, resourceID, resourceName, from, to string)
	RecordEvidenceUpload(ctx context.Context, actor audittrail.Actor, observationID, observationName, fileName string)
	RecordExport(ctx context.Context, actor audittrail.Actor, resourceType string, count int)
}

const resourceObservation = "observation"

type Service struct {
	observations store.ObservationStore
	evidence     store.EvidenceStore
	authorizer   Authorizer
	auditor      Auditor
	logger       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAuditor attaches an audit recorder.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func New(observations store.ObservationStore, evidence store.EvidenceStore, authorizer Authorizer, logger *slog.Logger, opts ...Option) (*Service, error) {
	if observations == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "observation store is required")
	}
	if evidence == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "evidence store is required")
	}
	if authorizer == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "authorizer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		observations: observations,
		evidence:     evidence,
		authorizer:   authorizer,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateInput carries the caller-supplied fields of a new observation.
type CreateInput struct {
	EntityID    *id.EntityID
	Title       string
	Description string
	Severity    models.Severity
}

func (s *Service) Create(ctx context.Context, actor *identitymodels.Identity, input CreateInput) (models.Observation, error) {
	if input.Title == "" {
		return models.Observation{}, dErrors.New(dErrors.CodeInvalidInput, "title is required")
	}
	if !models.ValidSeverity(input.Severity) {
		return models.Observation{}, dErrors.New(dErrors.CodeInvalidInput, "invalid severity")
	}

	var opts []authz.Option
	if input.EntityID != nil {
		opts = append(opts, authz.WithTargetEntity(*input.EntityID))
	}
	if err := s.authorizer.Authorize(ctx, actor, resourceObservation, "create", opts...); err != nil {
		return models.Observation{}, err
	}

	now := requestcontext.Now(ctx)
	obs := models.Observation{
		ID:          id.NewObservationID(),
		EntityID:    input.EntityID,
		OwnerID:     actor.UserID,
		Title:       input.Title,
		Description: input.Description,
		Severity:    input.Severity,
		Status:      models.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.observations.Save(ctx, obs); err != nil {
		return models.Observation{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save observation")
	}
	return obs, nil
}

func (s *Service) Get(ctx context.Context, actor *identitymodels.Identity, obsID id.ObservationID) (models.Observation, error) {
	return s.loadAuthorized(ctx, actor, obsID, "read")
}

func (s *Service) List(ctx context.Context, actor *identitymodels.Identity, entityID *id.EntityID, limit int) ([]models.Observation, error) {
	var opts []authz.Option
	if entityID != nil {
		opts = append(opts, authz.WithTargetEntity(*entityID))
	}
	if err := s.authorizer.Authorize(ctx, actor, resourceObservation, "read", opts...); err != nil {
		return nil, err
	}

	out, err := s.observations.List(ctx, entityID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list observations")
	}
	return out, nil
}

// UpdateInput carries the mutable fields of an observation. Nil means
// leave unchanged.
type UpdateInput struct {
	Title       *string
	Description *string
	Severity    *models.Severity
}

func (s *Service) Update(ctx context.Context, actor *identitymodels.Identity, obsID id.ObservationID, input UpdateInput) (models.Observation, error) {
	obs, err := s.loadAuthorized(ctx, actor, obsID, "update")
	if err != nil {
		return models.Observation{}, err
	}

	if input.Title != nil {
		if *input.Title == "" {
			return models.Observation{}, dErrors.New(dErrors.CodeInvalidInput, "title must not be empty")
		}
		obs.Title = *input.Title
	}
	if input.Description != nil {
		obs.Description = *input.Description
	}
	if input.Severity != nil {
		if !models.ValidSeverity(*input.Severity) {
			return models.Observation{}, dErrors.New(dErrors.CodeInvalidInput, "invalid severity")
		}
		obs.Severity = *input.Severity
	}
	obs.UpdatedAt = requestcontext.Now(ctx)

	if err := s.observations.Save(ctx, obs); err != nil {
		return models.Observation{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save observation")
	}
	return obs, nil
}

// ChangeStatus moves an observation through its lifecycle and records the
// transition with both the old and the new state.
func (s *Service) ChangeStatus(ctx context.Context, actor *identitymodels.Identity, obsID id.ObservationID, to models.Status) (models.Observation, error) {
	if !models.ValidStatus(to) {
		return models.Observation{}, dErrors.New(dErrors.CodeInvalidInput, "invalid status")
	}

	obs, err := s.loadAuthorized(ctx, actor, obsID, "update")
	if err != nil {
		return models.Observation{}, err
	}

	from := obs.Status
	if from == to {
		return obs, nil
	}
	obs.Status = to
	obs.UpdatedAt = requestcontext.Now(ctx)

	if err := s.observations.Save(ctx, obs); err != nil {
		return models.Observation{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save observation")
	}
	if s.auditor != nil {
		s.auditor.RecordStatusChange(ctx, audittrail.ActorFromIdentity(actor),
			resourceObservation, obs.ID.String(), obs.Title, string(from), string(to))
	}
	return obs, nil
}

func (s *Service) Delete(ctx context.Context, actor *identitymodels.Identity, obsID id.ObservationID) error {
	if _, err := s.loadAuthorized(ctx, actor, obsID, "delete"); err != nil {
		return err
	}
	if err := s.observations.Delete(ctx, obsID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete observation")
	}
	return nil
}

// EvidenceInput carries the metadata of an uploaded evidence file.
type EvidenceInput struct {
	FileName    string
	ContentType string
	SizeBytes   int64
}

func (s *Service) AttachEvidence(ctx context.Context, actor *identitymodels.Identity, obsID id.ObservationID, input EvidenceInput) (models.Evidence, error) {
	if input.FileName == "" {
		return models.Evidence{}, dErrors.New(dErrors.CodeInvalidInput, "file name is required")
	}

	obs, err := s.loadAuthorized(ctx, actor, obsID, "update")
	if err != nil {
		return models.Evidence{}, err
	}

	ev := models.Evidence{
		ID:            id.NewEvidenceID(),
		ObservationID: obs.ID,
		FileName:      input.FileName,
		ContentType:   input.ContentType,
		SizeBytes:     input.SizeBytes,
		UploadedBy:    actor.UserID,
		UploadedAt:    requestcontext.Now(ctx),
	}
	if err := s.evidence.Save(ctx, ev); err != nil {
		return models.Evidence{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save evidence")
	}
	if s.auditor != nil {
		s.auditor.RecordEvidenceUpload(ctx, audittrail.ActorFromIdentity(actor),
			obs.ID.String(), obs.Title, ev.FileName)
	}
	return ev, nil
}

func (s *Service) ListEvidence(ctx context.Context, actor *identitymodels.Identity, obsID id.ObservationID) ([]models.Evidence, error) {
	if _, err := s.loadAuthorized(ctx, actor, obsID, "read"); err != nil {
		return nil, err
	}
	out, err := s.evidence.ListByObservation(ctx, obsID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list evidence")
	}
	return out, nil
}

// Export returns all observations the caller may export, recording the
// bulk read on the audit trail.
func (s *Service) Export(ctx context.Context, actor *identitymodels.Identity, entityID *id.EntityID) ([]models.Observation, error) {
	var opts []authz.Option
	if entityID != nil {
		opts = append(opts, authz.WithTargetEntity(*entityID))
	}
	if err := s.authorizer.Authorize(ctx, actor, resourceObservation, "export", opts...); err != nil {
		return nil, err
	}

	out, err := s.observations.List(ctx, entityID, 0)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to export observations")
	}
	if s.auditor != nil {
		s.auditor.RecordExport(ctx, audittrail.ActorFromIdentity(actor), resourceObservation, len(out))
	}
	return out, nil
}

// loadAuthorized loads an observation and authorizes the action against
// it, with the record's entity binding and ownership in scope. When the
// observation does not exist, callers without the base permission get the
// same denial an existing-but-forbidden record would produce, so a probe
// cannot distinguish the two.
func (s *Service) loadAuthorized(ctx context.Context, actor *identitymodels.Identity, obsID id.ObservationID, action string) (models.Observation, error) {
	obs, err := s.observations.FindByID(ctx, obsID)
	if errors.Is(err, sentinel.ErrNotFound) {
		if authzErr := s.authorizer.Authorize(ctx, actor, resourceObservation, action); authzErr != nil {
			return models.Observation{}, authzErr
		}
		return models.Observation{}, dErrors.New(dErrors.CodeNotFound, "observation not found")
	}
	if err != nil {
		return models.Observation{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load observation")
	}

	opts := []authz.Option{authz.WithOwnership(resource.TypeObservation, obsID.String())}
	if obs.EntityID != nil {
		opts = append(opts, authz.WithTargetEntity(*obs.EntityID))
	}
	if err := s.authorizer.Authorize(ctx, actor, resourceObservation, action, opts...); err != nil {
		return models.Observation{}, err
	}
	return obs, nil
}
