package audittrail_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"veritrail/internal/audittrail"
	"veritrail/internal/audittrail/store/memory"
	"veritrail/internal/authz/resource"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
	"veritrail/pkg/requestcontext"
)

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (s *failingStore) Append(context.Context, audittrail.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("disk full")
}

func (s *failingStore) ListRecent(context.Context, int) ([]audittrail.Entry, error) {
	return nil, nil
}

func (s *failingStore) ListByActor(context.Context, id.UserID, int) ([]audittrail.Entry, error) {
	return nil, nil
}

func (s *failingStore) ListByResource(context.Context, string, string, int) ([]audittrail.Entry, error) {
	return nil, nil
}

type RecorderSuite struct {
	suite.Suite

	store    *memory.Store
	recorder *audittrail.Recorder
	names    map[string]string

	now   time.Time
	ctx   context.Context
	actor audittrail.Actor
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.store = memory.New()
	s.names = make(map[string]string)

	registry := resource.NewRegistry(resource.Loaders{
		Observation: func(_ context.Context, rawID string) (resource.Record, error) {
			name, ok := s.names[rawID]
			if !ok {
				return resource.Record{}, sentinel.ErrNotFound
			}
			return resource.Record{ID: rawID, DisplayName: name}, nil
		},
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder, err := audittrail.NewRecorder(s.store, registry, logger,
		audittrail.WithSyncDelivery(),
		audittrail.WithExemptPaths(`/insights(/|$)`),
	)
	s.Require().NoError(err)
	s.recorder = recorder

	s.now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), s.now)
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.9", "integration-test")
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	s.ctx = ctx

	userID := id.NewUserID()
	sessionID := id.NewSessionID()
	s.actor = audittrail.Actor{
		UserID:    &userID,
		Email:     "dana@example.com",
		SessionID: &sessionID,
	}
}

func (s *RecorderSuite) entries() []audittrail.Entry {
	entries, err := s.store.ListRecent(context.Background(), 0)
	s.Require().NoError(err)
	return entries
}

func (s *RecorderSuite) TestRecordRequestWritesEntry() {
	obsID := uuid.NewString()
	s.names[obsID] = "Q3 Access Review"

	s.recorder.RecordRequest(s.ctx, s.actor, audittrail.Request{
		Method:       http.MethodPost,
		Path:         "/api/v1/observations/" + obsID + "/evidence",
		Status:       http.StatusCreated,
		RequestBody:  []byte(`{"fileName":"scan.pdf"}`),
		ResponseBody: []byte(`{"data":{"fileName":"scan.pdf"}}`),
	})

	entries := s.entries()
	s.Require().Len(entries, 1)
	entry := entries[0]

	s.Equal(audittrail.ActionCreate, entry.Action)
	s.Equal("evidence", entry.Resource)
	s.Equal(`Uploaded evidence "scan.pdf" to observation "Q3 Access Review"`, entry.Description)
	s.Equal(s.now, entry.Timestamp)
	s.Equal("dana@example.com", entry.ActorEmail)
	s.Equal(*s.actor.UserID, *entry.ActorUserID)
	s.Equal("203.0.113.9", entry.IPAddress)
	s.Equal("integration-test", entry.UserAgent)
	s.Equal("req-1", entry.RequestID)
	s.JSONEq(`{"fileName":"scan.pdf"}`, string(entry.NewValue))
	s.Nil(entry.PreviousValue)
}

func (s *RecorderSuite) TestReadRequestsNeverRecorded() {
	s.recorder.RecordRequest(s.ctx, s.actor, audittrail.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/observations",
		Status: http.StatusOK,
	})
	s.Empty(s.entries())
}

func (s *RecorderSuite) TestFailedRequestsNeverRecorded() {
	s.recorder.RecordRequest(s.ctx, s.actor, audittrail.Request{
		Method:      http.MethodPost,
		Path:        "/api/v1/observations",
		Status:      http.StatusUnprocessableEntity,
		RequestBody: []byte(`{}`),
	})
	s.Empty(s.entries())
}

func (s *RecorderSuite) TestExemptPathsNeverRecorded() {
	obsID := uuid.NewString()
	s.recorder.RecordRequest(s.ctx, s.actor, audittrail.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/observations/" + obsID + "/insights",
		Status: http.StatusCreated,
	})
	s.Empty(s.entries())
}

func (s *RecorderSuite) TestStoreFailureIsSwallowed() {
	store := &failingStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder, err := audittrail.NewRecorder(store, resource.NewRegistry(resource.Loaders{}), logger,
		audittrail.WithSyncDelivery(),
	)
	s.Require().NoError(err)

	// Must not panic or surface the error anywhere.
	recorder.RecordLogin(s.ctx, *s.actor.UserID, "Dana Reyes")
	s.Equal(1, store.calls)
}

func (s *RecorderSuite) TestAsyncDeliveryDrainsOnClose() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder, err := audittrail.NewRecorder(s.store, resource.NewRegistry(resource.Loaders{}), logger,
		audittrail.WithBuffer(64),
	)
	s.Require().NoError(err)

	for range 10 {
		recorder.RecordLogin(s.ctx, *s.actor.UserID, "Dana Reyes")
	}
	recorder.Close()

	s.Len(s.entries(), 10)
}

func (s *RecorderSuite) TestExplicitHelpers() {
	userID := *s.actor.UserID
	obsID := uuid.NewString()

	s.recorder.RecordLogin(s.ctx, userID, "Dana Reyes")
	s.recorder.RecordLogout(s.ctx, userID, "Dana Reyes")
	s.recorder.RecordStatusChange(s.ctx, s.actor, "observation", obsID, "Q3 Access Review", "OPEN", "REMEDIATED")
	s.recorder.RecordAssignment(s.ctx, userID, "admin@example.com", "auditor", "Lee Chen", true)
	s.recorder.RecordAssignment(s.ctx, userID, "admin@example.com", "auditor", "Lee Chen", false)
	s.recorder.RecordEvidenceUpload(s.ctx, s.actor, obsID, "Q3 Access Review", "scan.pdf")
	s.recorder.RecordImport(s.ctx, s.actor, "observation", 24)
	s.recorder.RecordExport(s.ctx, s.actor, "observation", 1)
	s.recorder.RecordPermissionChange(s.ctx, userID, "admin@example.com", "auditor", `Updated permissions for role "auditor"`)

	entries := s.entries()
	s.Require().Len(entries, 9)

	// Newest first.
	byAction := make(map[audittrail.Action]audittrail.Entry)
	for _, entry := range entries {
		byAction[entry.Action] = entry
	}

	s.Equal("Dana Reyes logged in", byAction[audittrail.ActionLogin].Description)
	s.Equal("Dana Reyes logged out", byAction[audittrail.ActionLogout].Description)
	s.Equal(`Changed status of observation "Q3 Access Review" from "OPEN" to "REMEDIATED"`,
		byAction[audittrail.ActionStatusChange].Description)
	s.Equal(`Uploaded evidence "scan.pdf" to observation "Q3 Access Review"`,
		byAction[audittrail.ActionEvidenceUpload].Description)
	s.Equal("Imported 24 observations", byAction[audittrail.ActionImport].Description)
	s.Equal("Exported 1 observation", byAction[audittrail.ActionExport].Description)
	s.Equal(`Updated permissions for role "auditor"`,
		byAction[audittrail.ActionPermissionChange].Description)

	assignments, err := s.store.ListByResource(context.Background(), "role", "", 0)
	s.Require().NoError(err)
	s.Len(assignments, 3)
}

func (s *RecorderSuite) TestAssignmentDescriptions() {
	userID := *s.actor.UserID

	s.recorder.RecordAssignment(s.ctx, userID, "admin@example.com", "auditor", "Lee Chen", true)
	s.recorder.RecordAssignment(s.ctx, userID, "admin@example.com", "auditor", "Lee Chen", false)

	entries := s.entries()
	s.Require().Len(entries, 2)
	s.Equal(`Revoked role "auditor" from Lee Chen`, entries[0].Description)
	s.Equal(`Granted role "auditor" to Lee Chen`, entries[1].Description)
}

func (s *RecorderSuite) TestSystemActionHasNoActor() {
	s.recorder.RecordImport(s.ctx, audittrail.Actor{}, "observation", 3)

	entries := s.entries()
	s.Require().Len(entries, 1)
	s.Nil(entries[0].ActorUserID)
	s.Empty(entries[0].ActorEmail)
}
