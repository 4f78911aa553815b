package publisher

import (
	"context"
	"log/slog"
	"time"

	"veritrail/internal/audittrail"
	id "veritrail/pkg/domain"
)

const (
	defaultOutboxInterval = 5 * time.Second
	defaultOutboxBatch    = 200
)

// OutboxStore is the slice of the audit store the outbox worker needs:
// entries committed by the write path but not yet shipped downstream.
type OutboxStore interface {
	ListUnpublished(ctx context.Context, limit int) ([]audittrail.Entry, error)
	MarkPublished(ctx context.Context, ids []id.AuditEntryID) error
}

// SyncSink delivers one entry and returns only after the downstream system
// has acknowledged it. The fire-and-forget Sink is deliberately not
// accepted here; it would report success for entries the broker never got.
type SyncSink interface {
	AppendSync(ctx context.Context, entry audittrail.Entry) error
}

// Outbox drains committed-but-unpublished audit entries from the store and
// hands them to a sink on a fixed cadence. Entries are marked published once
// the sink acknowledges them, so a crash between commit and publish replays
// the entry rather than losing it.
type Outbox struct {
	store    OutboxStore
	sink     SyncSink
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

type OutboxOption func(*Outbox)

func WithOutboxInterval(d time.Duration) OutboxOption {
	return func(o *Outbox) {
		if d > 0 {
			o.interval = d
		}
	}
}

func WithOutboxBatch(n int) OutboxOption {
	return func(o *Outbox) {
		if n > 0 {
			o.batch = n
		}
	}
}

func NewOutbox(store OutboxStore, sink SyncSink, logger *slog.Logger, opts ...OutboxOption) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	out := &Outbox{
		store:    store,
		sink:     sink,
		logger:   logger,
		interval: defaultOutboxInterval,
		batch:    defaultOutboxBatch,
	}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// Run drains the outbox until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.Drain(ctx); err != nil {
				o.logger.WarnContext(ctx, "audit outbox drain failed", "error", err)
			}
		}
	}
}

// Drain ships every pending entry, oldest first, looping until the backlog
// is empty or an error stops progress.
func (o *Outbox) Drain(ctx context.Context) error {
	for {
		entries, err := o.store.ListUnpublished(ctx, o.batch)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		shipped := make([]id.AuditEntryID, 0, len(entries))
		for _, entry := range entries {
			if err := o.sink.AppendSync(ctx, entry); err != nil {
				// Publish the acknowledged prefix and retry the rest next tick.
				if markErr := o.store.MarkPublished(ctx, shipped); markErr != nil {
					return markErr
				}
				return err
			}
			shipped = append(shipped, entry.ID)
		}
		if err := o.store.MarkPublished(ctx, shipped); err != nil {
			return err
		}
		if len(entries) < o.batch {
			return nil
		}
	}
}
