package audittrail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"

	"veritrail/internal/audittrail/metrics"
	"veritrail/internal/authz/resource"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/requestcontext"
)

const defaultBuffer = 256

// Request is the completed request/response pair handed to the recorder
// once the response status is known.
type Request struct {
	Method       string
	Path         string
	Status       int
	RequestBody  []byte
	ResponseBody []byte
}

// Recorder synthesizes and delivers audit entries. Delivery is
// fire-and-forget by default: entries are queued and written by a
// background worker, a full buffer drops the entry, and no failure ever
// propagates to the triggering request. Synchronous delivery is a
// configuration knob for deployments that prefer audit durability over
// request latency.
type Recorder struct {
	store    Store
	synth    synthesizer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	sinks    []Sink
	exempt   []*regexp.Regexp
	syncMode bool

	inbox     chan pending
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// pending defers entry construction to the delivery worker so name
// lookups never sit on the request path.
type pending struct {
	ctx   context.Context
	build func(ctx context.Context) Entry
}

// Option configures a Recorder.
type Option func(*recorderConfig)

type recorderConfig struct {
	syncMode bool
	buffer   int
	sinks    []Sink
	metrics  *metrics.Metrics
	exempt   []string
}

// WithSyncDelivery makes Record calls write the entry before returning.
func WithSyncDelivery() Option {
	return func(c *recorderConfig) { c.syncMode = true }
}

// WithBuffer sets the asynchronous delivery buffer size.
func WithBuffer(size int) Option {
	return func(c *recorderConfig) { c.buffer = size }
}

// WithSink adds a secondary best-effort sink receiving every committed
// entry.
func WithSink(sink Sink) Option {
	return func(c *recorderConfig) { c.sinks = append(c.sinks, sink) }
}

// WithMetrics attaches audit delivery metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *recorderConfig) { c.metrics = m }
}

// WithExemptPaths excludes request paths matching any of the patterns
// from path-inferred recording. Explicit helpers are unaffected.
func WithExemptPaths(patterns ...string) Option {
	return func(c *recorderConfig) { c.exempt = append(c.exempt, patterns...) }
}

func NewRecorder(store Store, registry *resource.Registry, logger *slog.Logger, opts ...Option) (*Recorder, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "audit store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := recorderConfig{buffer: defaultBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}

	exempt := make([]*regexp.Regexp, 0, len(cfg.exempt))
	for _, pattern := range cfg.exempt {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid exempt path pattern")
		}
		exempt = append(exempt, compiled)
	}

	r := &Recorder{
		store:    store,
		synth:    synthesizer{registry: registry},
		logger:   logger,
		metrics:  cfg.metrics,
		sinks:    cfg.sinks,
		exempt:   exempt,
		syncMode: cfg.syncMode,
	}
	if !r.syncMode {
		r.inbox = make(chan pending, cfg.buffer)
		r.wg.Add(1)
		go r.run()
	}
	return r, nil
}

// Close drains queued entries and stops the delivery worker.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		if r.inbox != nil {
			close(r.inbox)
		}
	})
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for p := range r.inbox {
		r.metrics.SetQueueDepth(len(r.inbox))
		r.write(p.ctx, p.build(p.ctx))
	}
}

// Eligible reports whether a request with this method and path can
// produce a path-inferred entry. The status check happens at record time.
func (r *Recorder) Eligible(method, path string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	for _, pattern := range r.exempt {
		if pattern.MatchString(path) {
			return false
		}
	}
	return true
}

// RecordRequest synthesizes an entry from a completed mutating request.
// Non-2xx responses, read methods, and exempt paths produce nothing.
func (r *Recorder) RecordRequest(ctx context.Context, actor Actor, req Request) {
	if !r.Eligible(req.Method, req.Path) || req.Status/100 != 2 {
		return
	}
	info := inferPath(req.Path)
	if info.parentResource == "" {
		return
	}

	reqBody := parseBody(req.RequestBody)
	respBody := parseBody(req.ResponseBody)

	base := r.newEntry(ctx, actor, actionForMethod(req.Method))
	base.Resource = singularize(info.resource())
	base.ResourceID = info.resourceID()
	if json.Valid(req.RequestBody) {
		base.NewValue = req.RequestBody
	}

	method := req.Method
	r.deliver(ctx, func(ctx context.Context) Entry {
		entry := base
		entry.Description = r.synth.describe(ctx, method, info, reqBody, respBody)
		return entry
	})
}

// RecordLogin writes an explicit LOGIN entry.
func (r *Recorder) RecordLogin(ctx context.Context, userID id.UserID, userName string) {
	entry := r.newEntry(ctx, Actor{UserID: &userID, Email: userName}, ActionLogin)
	entry.Resource = "user"
	entry.ResourceID = userID.String()
	entry.Description = userName + " logged in"
	r.deliverEntry(ctx, entry)
}

// RecordLogout writes an explicit LOGOUT entry.
func (r *Recorder) RecordLogout(ctx context.Context, userID id.UserID, userName string) {
	entry := r.newEntry(ctx, Actor{UserID: &userID, Email: userName}, ActionLogout)
	entry.Resource = "user"
	entry.ResourceID = userID.String()
	entry.Description = userName + " logged out"
	r.deliverEntry(ctx, entry)
}

// RecordStatusChange writes an explicit STATUS_CHANGE entry with the
// precise transition, which path inference cannot phrase.
func (r *Recorder) RecordStatusChange(ctx context.Context, actor Actor, resourceType, resourceID, resourceName, from, to string) {
	entry := r.newEntry(ctx, actor, ActionStatusChange)
	entry.Resource = resourceType
	entry.ResourceID = resourceID
	if from != "" {
		entry.Description = fmt.Sprintf("Changed status of %s %q from %q to %q", resourceType, resourceName, from, to)
	} else {
		entry.Description = fmt.Sprintf("Changed status of %s %q to %q", resourceType, resourceName, to)
	}
	r.deliverEntry(ctx, entry)
}

// RecordAssignment writes an explicit ASSIGNMENT entry naming the exact
// role and grantee.
func (r *Recorder) RecordAssignment(ctx context.Context, actorID id.UserID, actorName, roleName, granteeName string, granted bool) {
	entry := r.newEntry(ctx, Actor{UserID: &actorID, Email: actorName}, ActionAssignment)
	entry.Resource = "role"
	if granted {
		entry.Description = fmt.Sprintf("Granted role %q to %s", roleName, granteeName)
	} else {
		entry.Description = fmt.Sprintf("Revoked role %q from %s", roleName, granteeName)
	}
	r.deliverEntry(ctx, entry)
}

// RecordPermissionChange writes an explicit PERMISSION_CHANGE entry with
// pre-composed language from the roles service.
func (r *Recorder) RecordPermissionChange(ctx context.Context, actorID id.UserID, actorName, roleName, description string) {
	entry := r.newEntry(ctx, Actor{UserID: &actorID, Email: actorName}, ActionPermissionChange)
	entry.Resource = "role"
	entry.Description = description
	r.deliverEntry(ctx, entry)
}

// RecordEvidenceUpload writes an explicit EVIDENCE_UPLOAD entry.
func (r *Recorder) RecordEvidenceUpload(ctx context.Context, actor Actor, observationID, observationName, fileName string) {
	entry := r.newEntry(ctx, actor, ActionEvidenceUpload)
	entry.Resource = "evidence"
	entry.ResourceID = observationID
	entry.Description = fmt.Sprintf("Uploaded evidence %q to observation %q", fileName, observationName)
	r.deliverEntry(ctx, entry)
}

// RecordImport writes an explicit IMPORT entry.
func (r *Recorder) RecordImport(ctx context.Context, actor Actor, resourceType string, count int) {
	entry := r.newEntry(ctx, actor, ActionImport)
	entry.Resource = resourceType
	entry.Description = fmt.Sprintf("Imported %d %s", count, pluralize(resourceType, count))
	r.deliverEntry(ctx, entry)
}

// RecordExport writes an explicit EXPORT entry.
func (r *Recorder) RecordExport(ctx context.Context, actor Actor, resourceType string, count int) {
	entry := r.newEntry(ctx, actor, ActionExport)
	entry.Resource = resourceType
	entry.Description = fmt.Sprintf("Exported %d %s", count, pluralize(resourceType, count))
	r.deliverEntry(ctx, entry)
}

func (r *Recorder) newEntry(ctx context.Context, actor Actor, action Action) Entry {
	return Entry{
		ID:          id.NewAuditEntryID(),
		Timestamp:   requestcontext.Now(ctx),
		ActorUserID: actor.UserID,
		ActorEmail:  actor.Email,
		SessionID:   actor.SessionID,
		Action:      action,
		IPAddress:   requestcontext.ClientIP(ctx),
		UserAgent:   requestcontext.UserAgent(ctx),
		RequestID:   requestcontext.RequestID(ctx),
	}
}

func (r *Recorder) deliverEntry(ctx context.Context, entry Entry) {
	r.deliver(ctx, func(context.Context) Entry { return entry })
}

// deliver hands an entry to the worker, or writes it inline in sync
// mode. Once queued, delivery runs to completion independent of client
// disconnect; the detached context keeps request metadata but drops
// cancellation.
func (r *Recorder) deliver(ctx context.Context, build func(ctx context.Context) Entry) {
	detached := context.WithoutCancel(ctx)
	if r.syncMode {
		r.write(detached, build(detached))
		return
	}
	select {
	case r.inbox <- pending{ctx: detached, build: build}:
		r.metrics.SetQueueDepth(len(r.inbox))
	default:
		r.metrics.RecordDropped()
		r.logger.ErrorContext(ctx, "audit buffer full, entry dropped")
	}
}

// write commits one entry. Failures are counted and logged, never
// returned; the triggering request already completed.
func (r *Recorder) write(ctx context.Context, entry Entry) {
	if err := r.store.Append(ctx, entry); err != nil {
		r.metrics.RecordFailure()
		r.logger.ErrorContext(ctx, "failed to persist audit entry",
			"action", entry.Action,
			"resource", entry.Resource,
			"error", err,
		)
		return
	}
	r.metrics.RecordWritten(string(entry.Action))

	// Operational tailing sink: the same description with its metadata.
	r.logger.InfoContext(ctx, entry.Description,
		"audit_action", entry.Action,
		"resource", entry.Resource,
		"resource_id", entry.ResourceID,
		"actor_email", entry.ActorEmail,
		"request_id", entry.RequestID,
	)

	for _, sink := range r.sinks {
		if err := sink.Append(ctx, entry); err != nil {
			r.logger.WarnContext(ctx, "audit sink append failed",
				"error", err,
			)
		}
	}
}

func pluralize(noun string, count int) string {
	if count == 1 {
		return noun
	}
	if singularize(noun) != noun {
		// Already plural.
		return noun
	}
	return noun + "s"
}
