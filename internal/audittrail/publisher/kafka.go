// Package publisher fans committed audit entries out to Kafka so
// downstream consumers (dashboards, SIEM pipelines) can tail the trail
// without querying the primary store.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"veritrail/internal/audittrail"
	"veritrail/pkg/platform/circuit"
)

// Broker is the narrow produce surface of a Kafka client. *kgo.Client
// satisfies it; tests swap in a fake.
type Broker interface {
	Produce(ctx context.Context, record *kgo.Record, promise func(*kgo.Record, error))
}

// Kafka publishes audit entries to a single topic, keyed by actor so one
// user's trail stays ordered within a partition. Delivery is best-effort:
// produce failures are logged through the promise, never returned to the
// recorder's write path.
type Kafka struct {
	broker  Broker
	topic   string
	logger  *slog.Logger
	breaker *circuit.Breaker
	skipped atomic.Uint64
}

func NewKafka(broker Broker, topic string, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{
		broker: broker,
		topic:  topic,
		logger: logger,
		// A broker outage should not queue unbounded produce attempts
		// behind a best-effort sink.
		breaker: circuit.New("audit-kafka", circuit.WithFailureThreshold(5)),
	}
}

// Connect dials the brokers and ensures the audit topic exists.
func Connect(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*Kafka, *kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, -1, -1, nil, topic); err != nil {
		// Already-exists is the steady state; anything else still lets the
		// producer run against an auto-created or pre-provisioned topic.
		logger.InfoContext(ctx, "audit topic creation skipped",
			"topic", topic,
			"reason", err,
		)
	}

	return NewKafka(client, topic, logger), client, nil
}

// probeEvery is how many entries are skipped between probe attempts while
// the circuit is open.
const probeEvery = 100

// Append publishes one entry. It implements audittrail.Sink.
//
// While the circuit is open, entries are dropped except for a periodic
// probe; a successful probe closes the circuit again.
func (k *Kafka) Append(ctx context.Context, entry audittrail.Entry) error {
	if k.breaker.IsOpen() && k.skipped.Add(1)%probeEvery != 0 {
		return nil
	}

	record, err := k.newRecord(entry)
	if err != nil {
		return err
	}
	k.broker.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			if _, change := k.breaker.RecordFailure(); change.Opened {
				k.logger.WarnContext(ctx, "audit kafka circuit opened", "topic", k.topic)
			}
			k.logger.WarnContext(ctx, "audit entry publish failed",
				"topic", k.topic,
				"action", entry.Action,
				"error", err,
			)
			return
		}
		if _, change := k.breaker.RecordSuccess(); change.Closed {
			k.logger.InfoContext(ctx, "audit kafka circuit closed", "topic", k.topic)
		}
	})
	return nil
}

// AppendSync publishes one entry and waits for the broker's acknowledgment.
// The outbox drains through this path: an entry must not be stamped
// published until the broker actually has it.
func (k *Kafka) AppendSync(ctx context.Context, entry audittrail.Entry) error {
	record, err := k.newRecord(entry)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	k.broker.Produce(ctx, record, func(_ *kgo.Record, err error) {
		done <- err
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("produce audit entry: %w", err)
		}
		return nil
	}
}

func (k *Kafka) newRecord(entry audittrail.Entry) (*kgo.Record, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal audit entry: %w", err)
	}
	return &kgo.Record{
		Topic: k.topic,
		Key:   recordKey(entry),
		Value: payload,
	}, nil
}

// recordKey partitions by actor when one exists, by entry otherwise.
func recordKey(entry audittrail.Entry) []byte {
	if entry.ActorUserID != nil {
		return []byte(entry.ActorUserID.String())
	}
	return []byte(entry.ID.String())
}
