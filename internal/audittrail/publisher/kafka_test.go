package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"veritrail/internal/audittrail"
	id "veritrail/pkg/domain"
)

type fakeBroker struct {
	records []*kgo.Record
	err     error
}

func (b *fakeBroker) Produce(_ context.Context, record *kgo.Record, promise func(*kgo.Record, error)) {
	b.records = append(b.records, record)
	if promise != nil {
		promise(record, b.err)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKafkaAppendPublishesEntry(t *testing.T) {
	broker := &fakeBroker{}
	sink := NewKafka(broker, "veritrail.audit.v1", testLogger())

	userID := id.NewUserID()
	entry := audittrail.Entry{
		ID:          id.NewAuditEntryID(),
		ActorUserID: &userID,
		Action:      audittrail.ActionCreate,
		Resource:    "observation",
		Description: `Created observation "Stale Admin Accounts"`,
	}

	require.NoError(t, sink.Append(context.Background(), entry))
	require.Len(t, broker.records, 1)

	record := broker.records[0]
	assert.Equal(t, "veritrail.audit.v1", record.Topic)
	assert.Equal(t, userID.String(), string(record.Key))

	var published audittrail.Entry
	require.NoError(t, json.Unmarshal(record.Value, &published))
	assert.Equal(t, entry.Description, published.Description)
	assert.Equal(t, entry.Action, published.Action)
}

func TestKafkaKeyFallsBackToEntryID(t *testing.T) {
	broker := &fakeBroker{}
	sink := NewKafka(broker, "veritrail.audit.v1", testLogger())

	entry := audittrail.Entry{
		ID:       id.NewAuditEntryID(),
		Action:   audittrail.ActionImport,
		Resource: "observation",
	}
	require.NoError(t, sink.Append(context.Background(), entry))
	require.Len(t, broker.records, 1)
	assert.Equal(t, entry.ID.String(), string(broker.records[0].Key))
}

func TestKafkaProduceFailureIsNotReturned(t *testing.T) {
	broker := &fakeBroker{err: errors.New("leader not available")}
	sink := NewKafka(broker, "veritrail.audit.v1", testLogger())

	entry := audittrail.Entry{ID: id.NewAuditEntryID(), Action: audittrail.ActionCreate}
	assert.NoError(t, sink.Append(context.Background(), entry))
}

func TestKafkaAppendSyncSurfacesProduceError(t *testing.T) {
	broker := &fakeBroker{err: errors.New("leader not available")}
	sink := NewKafka(broker, "veritrail.audit.v1", testLogger())

	entry := audittrail.Entry{ID: id.NewAuditEntryID(), Action: audittrail.ActionCreate}
	err := sink.AppendSync(context.Background(), entry)
	require.ErrorContains(t, err, "leader not available")

	broker.err = nil
	require.NoError(t, sink.AppendSync(context.Background(), entry))
}

func TestKafkaOpensCircuitAfterRepeatedFailures(t *testing.T) {
	broker := &fakeBroker{err: errors.New("leader not available")}
	sink := NewKafka(broker, "veritrail.audit.v1", testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		entry := audittrail.Entry{ID: id.NewAuditEntryID(), Action: audittrail.ActionCreate}
		require.NoError(t, sink.Append(ctx, entry))
	}
	require.Len(t, broker.records, 5)
	require.True(t, sink.breaker.IsOpen())

	// Further entries are dropped without reaching the broker.
	entry := audittrail.Entry{ID: id.NewAuditEntryID(), Action: audittrail.ActionCreate}
	require.NoError(t, sink.Append(ctx, entry))
	assert.Len(t, broker.records, 5)
}

func TestKafkaProbeClosesCircuitOnRecovery(t *testing.T) {
	broker := &fakeBroker{err: errors.New("leader not available")}
	sink := NewKafka(broker, "veritrail.audit.v1", testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		entry := audittrail.Entry{ID: id.NewAuditEntryID(), Action: audittrail.ActionCreate}
		require.NoError(t, sink.Append(ctx, entry))
	}
	require.True(t, sink.breaker.IsOpen())

	// Broker recovers; the next probe attempt closes the circuit.
	broker.err = nil
	for i := 0; i < probeEvery; i++ {
		entry := audittrail.Entry{ID: id.NewAuditEntryID(), Action: audittrail.ActionCreate}
		require.NoError(t, sink.Append(ctx, entry))
	}
	require.False(t, sink.breaker.IsOpen())

	entry := audittrail.Entry{ID: id.NewAuditEntryID(), Action: audittrail.ActionCreate}
	require.NoError(t, sink.Append(ctx, entry))
	assert.Len(t, broker.records, 7)
}
