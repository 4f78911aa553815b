//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veritrail/internal/observations/models"
	"veritrail/internal/observations/store"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
	"veritrail/pkg/testutil/containers"
)

const observationsSchema = `
	CREATE TABLE observations (
		id          UUID PRIMARY KEY,
		entity_id   UUID,
		owner_id    UUID NOT NULL,
		title       TEXT NOT NULL,
		description TEXT,
		severity    TEXT NOT NULL,
		status      TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE evidence (
		id             UUID PRIMARY KEY,
		observation_id UUID NOT NULL REFERENCES observations (id) ON DELETE CASCADE,
		file_name      TEXT NOT NULL,
		content_type   TEXT NOT NULL,
		size_bytes     BIGINT NOT NULL,
		uploaded_by    UUID NOT NULL,
		uploaded_at    TIMESTAMPTZ NOT NULL
	);
`

type PostgresObservationStoreSuite struct {
	suite.Suite
	postgres     *containers.PostgresContainer
	observations *store.PostgresObservationStore
	evidence     *store.PostgresEvidenceStore
}

func TestPostgresObservationStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresObservationStoreSuite))
}

func (s *PostgresObservationStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), observationsSchema)
	s.observations = store.NewPostgresObservationStore(s.postgres.DB)
	s.evidence = store.NewPostgresEvidenceStore(s.postgres.DB)
}

func (s *PostgresObservationStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "evidence", "observations"))
}

func (s *PostgresObservationStoreSuite) newObservation(title string, entityID *id.EntityID, createdAt time.Time) models.Observation {
	return models.Observation{
		ID:          id.NewObservationID(),
		EntityID:    entityID,
		OwnerID:     id.NewUserID(),
		Title:       title,
		Description: "found during quarterly review",
		Severity:    models.SeverityHigh,
		Status:      models.StatusOpen,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func (s *PostgresObservationStoreSuite) TestSaveAndFindRoundTrip() {
	ctx := context.Background()
	entityID := id.NewEntityID()
	obs := s.newObservation("Unrotated API keys", &entityID, time.Now().UTC().Truncate(time.Millisecond))

	s.Require().NoError(s.observations.Save(ctx, obs))

	found, err := s.observations.FindByID(ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(obs.Title, found.Title)
	s.Equal(obs.Severity, found.Severity)
	s.Equal(obs.Status, found.Status)
	s.Require().NotNil(found.EntityID)
	s.Equal(entityID, *found.EntityID)
}

func (s *PostgresObservationStoreSuite) TestSaveWithoutEntityStoresNull() {
	ctx := context.Background()
	obs := s.newObservation("Org-wide finding", nil, time.Now().UTC())

	s.Require().NoError(s.observations.Save(ctx, obs))

	found, err := s.observations.FindByID(ctx, obs.ID)
	s.Require().NoError(err)
	s.Nil(found.EntityID)
}

func (s *PostgresObservationStoreSuite) TestSaveUpsertsExistingRow() {
	ctx := context.Background()
	obs := s.newObservation("Weak TLS config", nil, time.Now().UTC())
	s.Require().NoError(s.observations.Save(ctx, obs))

	obs.Status = models.StatusResolved
	obs.UpdatedAt = obs.UpdatedAt.Add(time.Hour)
	s.Require().NoError(s.observations.Save(ctx, obs))

	found, err := s.observations.FindByID(ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusResolved, found.Status)
}

func (s *PostgresObservationStoreSuite) TestListFiltersByEntityNewestFirst() {
	ctx := context.Background()
	entityA := id.NewEntityID()
	entityB := id.NewEntityID()
	base := time.Now().UTC().Add(-time.Hour)

	older := s.newObservation("Older finding", &entityA, base)
	newer := s.newObservation("Newer finding", &entityA, base.Add(time.Minute))
	other := s.newObservation("Unrelated finding", &entityB, base)
	for _, obs := range []models.Observation{older, newer, other} {
		s.Require().NoError(s.observations.Save(ctx, obs))
	}

	listed, err := s.observations.List(ctx, &entityA, 10)
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal("Newer finding", listed[0].Title)
	s.Equal("Older finding", listed[1].Title)

	all, err := s.observations.List(ctx, nil, 10)
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *PostgresObservationStoreSuite) TestDeleteMissingReturnsNotFound() {
	ctx := context.Background()
	obs := s.newObservation("To be removed", nil, time.Now().UTC())
	s.Require().NoError(s.observations.Save(ctx, obs))

	s.Require().NoError(s.observations.Delete(ctx, obs.ID))

	_, err := s.observations.FindByID(ctx, obs.ID)
	s.True(errors.Is(err, sentinel.ErrNotFound))
	s.True(errors.Is(s.observations.Delete(ctx, obs.ID), sentinel.ErrNotFound))
}

func (s *PostgresObservationStoreSuite) TestEvidenceListsNewestFirst() {
	ctx := context.Background()
	obs := s.newObservation("Finding with files", nil, time.Now().UTC())
	s.Require().NoError(s.observations.Save(ctx, obs))

	base := time.Now().UTC().Add(-time.Hour)
	first := models.Evidence{
		ID:            id.NewEvidenceID(),
		ObservationID: obs.ID,
		FileName:      "scan.pdf",
		ContentType:   "application/pdf",
		SizeBytes:     2048,
		UploadedBy:    obs.OwnerID,
		UploadedAt:    base,
	}
	second := first
	second.ID = id.NewEvidenceID()
	second.FileName = "followup.pdf"
	second.UploadedAt = base.Add(time.Minute)

	s.Require().NoError(s.evidence.Save(ctx, first))
	s.Require().NoError(s.evidence.Save(ctx, second))

	listed, err := s.evidence.ListByObservation(ctx, obs.ID)
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal("followup.pdf", listed[0].FileName)
	s.Equal("scan.pdf", listed[1].FileName)
}
