package governance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helmd/internal/capability"
	"github.com/fyrsmithlabs/helmd/internal/intent"
)

const instrumentationName = "github.com/fyrsmithlabs/helmd/internal/governance"

// snapshotAuditEntries is how many audit entries Snapshot includes.
const snapshotAuditEntries = 50

// Pipeline governs proposals from intake to a terminal decision.
//
// All pipeline state is guarded by one mutex. Approval claims an intent by
// removing it from the pending set under the lock and executes it after the
// lock is released, so two approvals of the same id can never both run.
type Pipeline struct {
	router  *capability.Router
	sandbox *capability.Router

	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
	events  Publisher
	metrics *Metrics
	tracer  trace.Tracer

	mu       sync.RWMutex
	cfg      Config
	pending  map[string]PendingIntent
	inflight map[string]PendingIntent
	approved *resolved[ApprovedIntent]
	rejected *resolved[RejectedIntent]
	queue    *dispatchQueue
	audit    *auditLog
	stats    Stats
	closed   bool

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the time source used for receipt, expiry and audit
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator overrides how intent and audit IDs are minted.
func WithIDGenerator(newID func() string) Option {
	return func(p *Pipeline) {
		if newID != nil {
			p.newID = newID
		}
	}
}

// WithBus sets where pipeline events are published. If the publisher has a
// Close method, Shutdown calls it.
func WithBus(pub Publisher) Option {
	return func(p *Pipeline) {
		if pub != nil {
			p.events = pub
		}
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

// New builds a pipeline that executes approvals through router.
func New(router *capability.Router, opts ...Option) (*Pipeline, error) {
	if router == nil {
		return nil, ErrNilRouter
	}

	p := &Pipeline{
		router:   router,
		sandbox:  router.Sandboxed(),
		logger:   zap.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
		events:   nopPublisher{},
		tracer:   otel.Tracer(instrumentationName),
		cfg:      DefaultConfig(),
		pending:  make(map[string]PendingIntent),
		inflight: make(map[string]PendingIntent),
		queue:    newDispatchQueue(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	p.audit = newAuditLog(p.cfg.AuditCapacity, p.cfg.AuditTrimTo)
	p.approved = newResolved[ApprovedIntent](p.cfg.ResolvedRetention)
	p.rejected = newResolved[RejectedIntent](p.cfg.ResolvedRetention)
	return p, nil
}

// MemoryLocked reports the memory lock flag. Together with PersonaLocked it
// lets the pipeline serve as the capability modules' lock source.
func (p *Pipeline) MemoryLocked() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.MemoryLocked
}

// PersonaLocked reports the persona lock flag.
func (p *Pipeline) PersonaLocked() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.PersonaLocked
}

// Intake admits a validated proposal. The proposal is stored as pending and,
// when the auto-approval predicate holds, approved before Intake returns.
func (p *Pipeline) Intake(ctx context.Context, proposal intent.Proposal, source Source) (*IntakeResult, error) {
	ctx, span := p.tracer.Start(ctx, "governance.intake")
	defer span.End()

	if source == "" {
		source = SourceProposer
	}
	if !source.Valid() {
		err := fmt.Errorf("%w: %q", ErrInvalidSource, source)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrShutdown
	}
	cfg := p.cfg
	if cfg.SimulationMode {
		source = SourceSimulation
	}
	priority, ttl := classify(proposal, cfg)
	pi := PendingIntent{
		ID:         p.newID(),
		Proposal:   proposal,
		ReceivedAt: p.now(),
		Source:     source,
		Priority:   priority,
		TTL:        ttl,
	}
	p.pending[pi.ID] = pi
	p.queue.push(pi)
	p.stats.Received++

	if cfg.MaxPendingIntents > 0 && len(p.pending) > cfg.MaxPendingIntents {
		p.stats.MaxPendingExceeded++
		p.metrics.limitExceeded()
		p.logger.Warn("pending intents over advisory limit",
			zap.Int("pending", len(p.pending)),
			zap.Int("limit", cfg.MaxPendingIntents),
		)
	}

	p.auditLocked(CategoryIntake, AuditReceived, pi.ID, map[string]any{
		"source":   pi.Source,
		"priority": pi.Priority,
		"intents":  proposal.Types(),
		"ttlMs":    pi.TTL.Milliseconds(),
	})
	p.publishLocked(EventIntentReceived, pi)
	p.metrics.received(pi.Source, pi.Priority)
	p.metrics.pending(len(p.pending))
	eligible := autoApprovable(proposal, cfg)
	var claim approvalClaim
	if eligible {
		// Claimed before unlocking so no dispatcher tick or operator decision
		// can resolve the intent between intake and auto-approval.
		claim, _ = p.claimLocked(pi.ID, ActorAuto)
	}
	p.mu.Unlock()

	span.SetAttributes(
		attribute.String("intent_id", pi.ID),
		attribute.String("source", string(pi.Source)),
		attribute.String("priority", string(pi.Priority)),
		attribute.Int("intent_count", len(proposal.Intents)),
		attribute.Bool("auto_approvable", eligible),
	)
	p.logger.Info("proposal received",
		zap.String("intent_id", pi.ID),
		zap.String("source", string(pi.Source)),
		zap.String("priority", string(pi.Priority)),
		zap.Duration("ttl", pi.TTL),
	)

	result := &IntakeResult{
		ID:       pi.ID,
		Status:   StatusPending,
		Priority: pi.Priority,
		Message:  "awaiting review",
	}
	if !eligible {
		return result, nil
	}

	approval := p.runApproval(ctx, claim)
	result.Status = approval.Status
	result.Message = "auto-approved"
	result.Approval = approval
	return result, nil
}

// Approve executes the pending intent id. An unknown or already claimed id
// yields ErrNotFound together with an error-status result.
func (p *Pipeline) Approve(ctx context.Context, id, approvedBy string) (*ApprovalResult, error) {
	return p.approve(ctx, id, approvedBy)
}

func (p *Pipeline) approve(ctx context.Context, id, approvedBy string) (*ApprovalResult, error) {
	p.mu.Lock()
	claim, ok := p.claimLocked(id, approvedBy)
	p.mu.Unlock()
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNotFound, id)
		_, span := p.tracer.Start(ctx, "governance.approve")
		span.SetAttributes(
			attribute.String("intent_id", id),
			attribute.String("approved_by", approvedBy),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return &ApprovalResult{ID: id, Status: StatusError, Message: "intent not found"}, err
	}
	return p.runApproval(ctx, claim), nil
}

// approvalClaim is a pending intent moved in flight, with the settings it
// executes under.
type approvalClaim struct {
	ApprovalClaim
	cfg Config
}

// claimLocked moves id from pending to in flight and records the approval.
// It reports false when id is not pending.
func (p *Pipeline) claimLocked(id, approvedBy string) (approvalClaim, bool) {
	pi, ok := p.pending[id]
	if !ok {
		return approvalClaim{}, false
	}
	delete(p.pending, id)
	p.inflight[id] = pi
	c := approvalClaim{
		ApprovalClaim: ApprovalClaim{
			ID:         id,
			ApprovedBy: approvedBy,
			ApprovedAt: p.now(),
			Intent:     pi,
		},
		cfg: p.cfg,
	}
	p.auditLocked(CategoryDecision, AuditApproved, id, map[string]any{
		"approvedBy": approvedBy,
	})
	p.publishLocked(EventIntentApproved, c.ApprovalClaim)
	p.metrics.pending(len(p.pending))
	return c, true
}

// runApproval executes a claimed intent and files its approval record.
func (p *Pipeline) runApproval(ctx context.Context, c approvalClaim) *ApprovalResult {
	ctx, span := p.tracer.Start(ctx, "governance.approve")
	defer span.End()
	id, approvedBy, approvedAt, pi, cfg := c.ID, c.ApprovedBy, c.ApprovedAt, c.Intent, c.cfg
	span.SetAttributes(
		attribute.String("intent_id", id),
		attribute.String("approved_by", approvedBy),
	)

	router := p.router
	if cfg.SimulationMode || pi.Source == SourceSimulation {
		router = p.sandbox
	}
	start := time.Now()
	result := p.execute(ctx, router, pi, cfg.ExecutionTimeout)
	elapsed := time.Since(start)
	result.ProcessingTimeMs = elapsed.Milliseconds()

	record := ApprovedIntent{
		Intent:     pi,
		ApprovedBy: approvedBy,
		ApprovedAt: approvedAt,
		Result:     result,
	}

	p.mu.Lock()
	delete(p.inflight, id)
	p.approved.put(id, record)
	p.stats.Approved++
	if approvedBy == ActorAuto {
		p.stats.AutoApproved++
	}
	p.stats.ExecutionErrors += int64(len(result.Errors))
	p.auditLocked(CategoryExecution, AuditExecuted, id, map[string]any{
		"success":          result.Success,
		"actions":          len(result.Actions),
		"errors":           len(result.Errors),
		"processingTimeMs": result.ProcessingTimeMs,
	})
	for _, msg := range result.Errors {
		p.auditLocked(CategoryExecution, AuditError, id, map[string]any{"error": msg})
	}
	p.publishLocked(EventIntentExecuted, record)
	p.mu.Unlock()

	p.metrics.resolved(StatusApproved)
	p.metrics.executed(elapsed)
	span.SetAttributes(
		attribute.Bool("success", result.Success),
		attribute.Int("action_count", len(result.Actions)),
		attribute.Int("error_count", len(result.Errors)),
	)
	if !result.Success {
		span.SetStatus(codes.Error, "partial execution failure")
		p.logger.Warn("intent executed with errors",
			zap.String("intent_id", id),
			zap.String("approved_by", approvedBy),
			zap.Strings("errors", result.Errors),
		)
	} else {
		p.logger.Info("intent executed",
			zap.String("intent_id", id),
			zap.String("approved_by", approvedBy),
			zap.Int("actions", len(result.Actions)),
			zap.Duration("elapsed", elapsed),
		)
	}

	return &ApprovalResult{ID: id, Status: StatusApproved, Result: &result}
}

// execute runs every intent in list order. A failing intent is recorded and
// the rest still run.
func (p *Pipeline) execute(ctx context.Context, router *capability.Router, pi PendingIntent, timeout time.Duration) ExecutionResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res := ExecutionResult{Actions: []ExecutedAction{}, Errors: []string{}}
	for i, in := range pi.Proposal.Intents {
		out, err := p.executeOne(ctx, router, in, timeout > 0)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("intents[%d] %s: %v", i, in.Kind(), err))
			continue
		}
		res.Actions = append(res.Actions, ExecutedAction{
			ActionType:   out.ActionType,
			Target:       out.Target,
			Result:       out.Result,
			Deduplicated: out.Deduplicated,
			Timestamp:    p.now(),
		})
	}
	res.Success = len(res.Errors) == 0
	return res
}

func (p *Pipeline) executeOne(ctx context.Context, router *capability.Router, in intent.Intent, bounded bool) (out capability.Outcome, err error) {
	if err := ctx.Err(); err != nil {
		return capability.Outcome{}, err
	}
	if !bounded {
		return p.callModule(ctx, router, in)
	}

	type reply struct {
		out capability.Outcome
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		o, e := p.callModule(ctx, router, in)
		ch <- reply{o, e}
	}()
	select {
	case r := <-ch:
		return r.out, r.err
	case <-ctx.Done():
		return capability.Outcome{}, ctx.Err()
	}
}

func (p *Pipeline) callModule(ctx context.Context, router *capability.Router, in intent.Intent) (out capability.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("capability module panicked, recovering",
				zap.String("intent_type", string(in.Kind())),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			err = fmt.Errorf("module panicked: %v", r)
		}
	}()
	return router.Execute(ctx, in)
}

// Reject resolves the pending intent id as rejected. An unknown id yields
// ErrNotFound together with an error-status result.
func (p *Pipeline) Reject(ctx context.Context, id, reason, rejectedBy string) (*DecisionResult, error) {
	_, span := p.tracer.Start(ctx, "governance.reject")
	defer span.End()
	span.SetAttributes(
		attribute.String("intent_id", id),
		attribute.String("rejected_by", rejectedBy),
	)

	p.mu.Lock()
	pi, ok := p.pending[id]
	if !ok {
		p.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrNotFound, id)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &DecisionResult{ID: id, Status: StatusError, Message: "intent not found"}, err
	}
	p.rejectLocked(pi, reason, rejectedBy, false)
	p.mu.Unlock()

	p.logger.Info("intent rejected",
		zap.String("intent_id", id),
		zap.String("rejected_by", rejectedBy),
		zap.String("reason", reason),
	)
	return &DecisionResult{ID: id, Status: StatusRejected, Message: "rejected: " + reason}, nil
}

func (p *Pipeline) rejectLocked(pi PendingIntent, reason, rejectedBy string, expired bool) {
	delete(p.pending, pi.ID)
	record := RejectedIntent{
		Intent:     pi,
		RejectedBy: rejectedBy,
		RejectedAt: p.now(),
		Reason:     reason,
		Expired:    expired,
	}
	p.rejected.put(pi.ID, record)

	outcome := StatusRejected
	if expired {
		outcome = StatusExpired
		p.stats.Expired++
	} else {
		p.stats.Rejected++
	}
	p.auditLocked(CategoryDecision, AuditRejected, pi.ID, map[string]any{
		"rejectedBy": rejectedBy,
		"reason":     reason,
		"expired":    expired,
	})
	p.publishLocked(EventIntentRejected, record)
	p.metrics.resolved(outcome)
	p.metrics.pending(len(p.pending))
}

// Tick runs one dispatch round: it re-checks auto-approval for a batch of
// queued intents, then rejects every pending intent whose TTL has elapsed.
// A failure in either phase, or for any single intent, is logged and does
// not stop the rest.
func (p *Pipeline) Tick(ctx context.Context) {
	p.safeRun("dispatch", func() { p.dispatch(ctx) })
	p.safeRun("expiry sweep", func() { p.sweepExpired() })
}

func (p *Pipeline) dispatch(ctx context.Context) {
	p.mu.Lock()
	cfg := p.cfg
	ids := p.queue.popBatch(cfg.BatchSize)
	var eligible []string
	for _, id := range ids {
		pi, ok := p.pending[id]
		if ok && autoApprovable(pi.Proposal, cfg) {
			eligible = append(eligible, id)
		}
	}
	p.mu.Unlock()

	for _, id := range eligible {
		p.safeRun("dispatch approval", func() {
			if _, err := p.approve(ctx, id, ActorAuto); err != nil && !errors.Is(err, ErrNotFound) {
				p.logger.Warn("dispatch approval failed", zap.String("intent_id", id), zap.Error(err))
			}
		})
	}
}

func (p *Pipeline) sweepExpired() {
	p.mu.RLock()
	now := p.now()
	var expired []PendingIntent
	for _, pi := range p.pending {
		if now.Sub(pi.ReceivedAt) > pi.TTL {
			expired = append(expired, pi)
		}
	}
	p.mu.RUnlock()
	sortPending(expired)

	for _, pi := range expired {
		id := pi.ID
		p.safeRun("expire intent", func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			current, ok := p.pending[id]
			if !ok || p.now().Sub(current.ReceivedAt) <= current.TTL {
				return
			}
			p.rejectLocked(current, ReasonExpired, ActorAuto, true)
			p.logger.Info("intent expired",
				zap.String("intent_id", id),
				zap.Duration("ttl", current.TTL),
			)
		})
	}
}

func (p *Pipeline) safeRun(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("dispatcher step panicked, recovering",
				zap.String("step", what),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	fn()
}

// Start launches the dispatcher, which calls Tick every TickInterval until
// Shutdown is called or ctx is done.
func (p *Pipeline) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}
	p.mu.RLock()
	closed, interval := p.closed, p.cfg.TickInterval
	p.mu.RUnlock()
	if closed {
		return ErrShutdown
	}

	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.running = true

	p.logger.Info("governance dispatcher started", zap.Duration("interval", interval))
	go p.run(ctx, interval, p.stopCh, p.doneCh)
	return nil
}

func (p *Pipeline) run(ctx context.Context, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("dispatcher goroutine panicked, recovering",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			p.runMu.Lock()
			p.running = false
			p.runMu.Unlock()
		}
	}()

	// Executions are never cancelled once claimed.
	tickCtx := context.WithoutCancel(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			p.logger.Info("governance dispatcher context done", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			p.Tick(tickCtx)
		}
	}
}

// Shutdown stops the dispatcher, refuses further intake and closes the event
// publisher. It waits for a running tick to finish or for ctx to be done.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.mu.Unlock()
	if already {
		return nil
	}

	p.runMu.Lock()
	var done chan struct{}
	if p.running {
		close(p.stopCh)
		done = p.doneCh
		p.running = false
	}
	p.runMu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if c, ok := p.events.(interface{ Close() }); ok {
		c.Close()
	}
	p.logger.Info("governance pipeline shut down")
	return nil
}

// UpdateConfig applies patch and returns the resulting configuration. Every
// pending intent is queued again so the next ticks re-evaluate it under the
// new settings.
func (p *Pipeline) UpdateConfig(ctx context.Context, patch ConfigPatch) (Config, error) {
	_, span := p.tracer.Start(ctx, "governance.update_config")
	defer span.End()

	p.mu.Lock()
	next := p.cfg.Apply(patch)
	if err := next.Validate(); err != nil {
		current := p.cfg
		p.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return current, err
	}
	p.cfg = next
	p.audit.resize(next.AuditCapacity, next.AuditTrimTo)
	requeued := 0
	for _, pi := range p.pendingLocked() {
		if p.queue.push(pi) {
			requeued++
		}
	}
	p.publishLocked(EventConfigUpdated, next)
	p.mu.Unlock()

	p.logger.Info("governance config updated",
		zap.Float64("auto_approve_threshold", next.AutoApproveThreshold),
		zap.Bool("memory_locked", next.MemoryLocked),
		zap.Bool("persona_locked", next.PersonaLocked),
		zap.Bool("simulation_mode", next.SimulationMode),
		zap.Bool("audit_enabled", next.AuditEnabled),
		zap.Int("requeued", requeued),
	)
	return next, nil
}

// Config returns the current configuration.
func (p *Pipeline) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Pending returns pending intents by priority, then receipt time.
func (p *Pipeline) Pending() []PendingIntent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pendingLocked()
}

func (p *Pipeline) pendingLocked() []PendingIntent {
	out := make([]PendingIntent, 0, len(p.pending))
	for _, pi := range p.pending {
		out = append(out, pi)
	}
	sortPending(out)
	return out
}

// Status reports where id is in its lifecycle. Intents being executed report
// approved.
func (p *Pipeline) Status(id string) (Status, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, ok := p.pending[id]; ok {
		return StatusPending, true
	}
	if _, ok := p.inflight[id]; ok {
		return StatusApproved, true
	}
	if _, ok := p.approved.get(id); ok {
		return StatusApproved, true
	}
	if r, ok := p.rejected.get(id); ok {
		if r.Expired {
			return StatusExpired, true
		}
		return StatusRejected, true
	}
	return "", false
}

// Approved returns the approval record for id, if still retained.
func (p *Pipeline) Approved(id string) (ApprovedIntent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.approved.get(id)
}

// Rejected returns the rejection record for id, if still retained.
func (p *Pipeline) Rejected(id string) (RejectedIntent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rejected.get(id)
}

// RecentAudit returns up to n audit entries, newest first.
func (p *Pipeline) RecentAudit(n int) []AuditEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.audit.recent(n)
}

// Stats returns the running counters.
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.statsLocked()
}

func (p *Pipeline) statsLocked() Stats {
	s := p.stats
	s.Pending = len(p.pending)
	s.QueueDepth = p.queue.depth()
	s.AuditEntries = p.audit.size()
	return s
}

// Snapshot returns a consistent read-only view of the pipeline.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		Pending:     p.pendingLocked(),
		Stats:       p.statsLocked(),
		RecentAudit: p.audit.recent(snapshotAuditEntries),
		Config:      p.cfg,
	}
}

func (p *Pipeline) auditLocked(category string, action AuditAction, intentID string, details map[string]any) {
	if !p.cfg.AuditEnabled {
		return
	}
	entry := AuditEntry{
		ID:        p.newID(),
		Timestamp: p.now(),
		Category:  category,
		Action:    action,
		Details:   details,
		IntentID:  intentID,
	}
	p.audit.append(entry)
	p.publishLocked(EventAuditLogged, entry)
}

// publishLocked runs under the pipeline lock so events leave in the same
// order as the transitions they describe.
func (p *Pipeline) publishLocked(t EventType, payload any) {
	p.events.Publish(Event{Type: t, Timestamp: p.now(), Payload: payload})
}

func sortPending(list []PendingIntent) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Priority.rank() != b.Priority.rank() {
			return a.Priority.rank() > b.Priority.rank()
		}
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		return a.ID < b.ID
	})
}

// resolved keeps terminal records for lookup, evicting the oldest once
// limit is reached.
type resolved[T any] struct {
	limit   int
	order   []string
	records map[string]T
}

func newResolved[T any](limit int) *resolved[T] {
	return &resolved[T]{limit: limit, records: make(map[string]T)}
}

func (r *resolved[T]) put(id string, v T) {
	if _, ok := r.records[id]; !ok {
		r.order = append(r.order, id)
	}
	r.records[id] = v
	for len(r.order) > r.limit {
		delete(r.records, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *resolved[T]) get(id string) (T, bool) {
	v, ok := r.records[id]
	return v, ok
}
