//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veritrail/internal/audittrail"
	"veritrail/internal/audittrail/store/postgres"
	id "veritrail/pkg/domain"
	"veritrail/pkg/testutil/containers"
)

const auditSchema = `
	CREATE TABLE audit_log (
		id             UUID PRIMARY KEY,
		timestamp      TIMESTAMPTZ NOT NULL,
		actor_user_id  UUID,
		actor_email    TEXT,
		action         TEXT NOT NULL,
		resource       TEXT NOT NULL,
		resource_id    TEXT,
		description    TEXT NOT NULL,
		previous_value JSONB,
		new_value      JSONB,
		ip_address     TEXT,
		user_agent     TEXT,
		session_id     UUID,
		request_id     TEXT,
		published_at   TIMESTAMPTZ
	);
`

type PostgresAuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAuditStoreSuite))
}

func (s *PostgresAuditStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), auditSchema)
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresAuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_log"))
}

func (s *PostgresAuditStoreSuite) newEntry(description string, at time.Time) audittrail.Entry {
	actorID := id.NewUserID()
	return audittrail.Entry{
		ID:          id.NewAuditEntryID(),
		Timestamp:   at,
		ActorUserID: &actorID,
		ActorEmail:  "dana@example.com",
		Action:      audittrail.ActionCreate,
		Resource:    "observation",
		ResourceID:  id.NewObservationID().String(),
		Description: description,
	}
}

func (s *PostgresAuditStoreSuite) TestAppendAndListRecent() {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	older := s.newEntry("older entry", base)
	newer := s.newEntry("newer entry", base.Add(time.Minute))
	s.Require().NoError(s.store.Append(ctx, older))
	s.Require().NoError(s.store.Append(ctx, newer))

	entries, err := s.store.ListRecent(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal("newer entry", entries[0].Description)
	s.Equal("older entry", entries[1].Description)
	s.Require().NotNil(entries[0].ActorUserID)
	s.Equal(*newer.ActorUserID, *entries[0].ActorUserID)
}

func (s *PostgresAuditStoreSuite) TestListByActorAndResource() {
	ctx := context.Background()
	now := time.Now().UTC()

	mine := s.newEntry("my entry", now)
	other := s.newEntry("someone else", now)
	s.Require().NoError(s.store.Append(ctx, mine))
	s.Require().NoError(s.store.Append(ctx, other))

	byActor, err := s.store.ListByActor(ctx, *mine.ActorUserID, 10)
	s.Require().NoError(err)
	s.Require().Len(byActor, 1)
	s.Equal("my entry", byActor[0].Description)

	byResource, err := s.store.ListByResource(ctx, "observation", mine.ResourceID, 10)
	s.Require().NoError(err)
	s.Require().Len(byResource, 1)
	s.Equal("my entry", byResource[0].Description)
}

func (s *PostgresAuditStoreSuite) TestOutboxDrainCycle() {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	first := s.newEntry("first", base)
	second := s.newEntry("second", base.Add(time.Minute))
	s.Require().NoError(s.store.Append(ctx, first))
	s.Require().NoError(s.store.Append(ctx, second))

	// Oldest first, so downstream ordering matches the trail.
	pending, err := s.store.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal("first", pending[0].Description)

	s.Require().NoError(s.store.MarkPublished(ctx, []id.AuditEntryID{first.ID}))

	pending, err = s.store.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal("second", pending[0].Description)

	s.Require().NoError(s.store.MarkPublished(ctx, []id.AuditEntryID{second.ID}))
	pending, err = s.store.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}
