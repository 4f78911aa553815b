package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritrail/internal/audittrail"
	id "veritrail/pkg/domain"
)

type fakeOutboxStore struct {
	mu        sync.Mutex
	entries   []audittrail.Entry
	published map[id.AuditEntryID]bool
}

func newFakeOutboxStore(entries ...audittrail.Entry) *fakeOutboxStore {
	return &fakeOutboxStore{entries: entries, published: make(map[id.AuditEntryID]bool)}
}

func (s *fakeOutboxStore) ListUnpublished(_ context.Context, limit int) ([]audittrail.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []audittrail.Entry
	for _, entry := range s.entries {
		if !s.published[entry.ID] {
			pending = append(pending, entry)
		}
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *fakeOutboxStore) MarkPublished(_ context.Context, ids []id.AuditEntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entryID := range ids {
		s.published[entryID] = true
	}
	return nil
}

func (s *fakeOutboxStore) publishedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

type fakeSink struct {
	mu       sync.Mutex
	received []audittrail.Entry
	failOn   string
}

func (s *fakeSink) AppendSync(_ context.Context, entry audittrail.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && entry.Description == s.failOn {
		return errors.New("broker unavailable")
	}
	s.received = append(s.received, entry)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func outboxEntry(description string) audittrail.Entry {
	return audittrail.Entry{
		ID:          id.NewAuditEntryID(),
		Action:      audittrail.ActionCreate,
		Resource:    "observation",
		Description: description,
	}
}

func TestOutboxDrainShipsPendingEntries(t *testing.T) {
	store := newFakeOutboxStore(
		outboxEntry("first"),
		outboxEntry("second"),
		outboxEntry("third"),
	)
	sink := &fakeSink{}
	outbox := NewOutbox(store, sink, testLogger())

	require.NoError(t, outbox.Drain(context.Background()))
	assert.Equal(t, 3, sink.count())
	assert.Equal(t, 3, store.publishedCount())

	// A second drain finds nothing left.
	require.NoError(t, outbox.Drain(context.Background()))
	assert.Equal(t, 3, sink.count())
}

func TestOutboxDrainLoopsPastBatchSize(t *testing.T) {
	store := newFakeOutboxStore(
		outboxEntry("first"),
		outboxEntry("second"),
		outboxEntry("third"),
	)
	sink := &fakeSink{}
	outbox := NewOutbox(store, sink, testLogger(), WithOutboxBatch(2))

	require.NoError(t, outbox.Drain(context.Background()))
	assert.Equal(t, 3, sink.count())
	assert.Equal(t, 3, store.publishedCount())
}

func TestOutboxSinkFailureKeepsRemainderPending(t *testing.T) {
	store := newFakeOutboxStore(
		outboxEntry("first"),
		outboxEntry("second"),
		outboxEntry("third"),
	)
	sink := &fakeSink{failOn: "second"}
	outbox := NewOutbox(store, sink, testLogger())

	require.Error(t, outbox.Drain(context.Background()))
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 1, store.publishedCount())

	// Once the sink recovers the remainder ships without re-sending the
	// already-published entry.
	sink.failOn = ""
	require.NoError(t, outbox.Drain(context.Background()))
	assert.Equal(t, 3, sink.count())
	assert.Equal(t, 3, store.publishedCount())
}

func TestOutboxLeavesEntryPendingWhenBrokerRejects(t *testing.T) {
	entry := outboxEntry("must survive the outage")
	store := newFakeOutboxStore(entry)
	broker := &fakeBroker{err: errors.New("broker unreachable")}
	outbox := NewOutbox(store, NewKafka(broker, "veritrail.audit.v1", testLogger()), testLogger())

	// The real sink waits for the broker's acknowledgment, so a rejected
	// produce must leave the entry unpublished for the next tick.
	require.Error(t, outbox.Drain(context.Background()))
	assert.Equal(t, 0, store.publishedCount())

	broker.err = nil
	require.NoError(t, outbox.Drain(context.Background()))
	assert.Equal(t, 1, store.publishedCount())
}

func TestOutboxRunDrainsOnTick(t *testing.T) {
	store := newFakeOutboxStore(outboxEntry("first"))
	sink := &fakeSink{}
	outbox := NewOutbox(store, sink, testLogger(), WithOutboxInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- outbox.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
