// Package control is the inbound surface of helmd: it validates proposals,
// hands them to the governance pipeline and serves read-only views of the
// resulting state. Transports such as HTTP and NATS call into a Service.
package control

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helmd/internal/capability"
	"github.com/fyrsmithlabs/helmd/internal/governance"
	"github.com/fyrsmithlabs/helmd/internal/intent"
	"github.com/fyrsmithlabs/helmd/internal/validation"
)

// Decision is an operator's verdict on a pending intent.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// DefaultActor is recorded when a decision names no actor.
const DefaultActor = "operator"

var (
	// ErrInvalidDecision is returned for a decision other than approve or reject.
	ErrInvalidDecision = errors.New("decision must be approve or reject")

	// ErrNilPipeline is returned by New without a pipeline.
	ErrNilPipeline = errors.New("pipeline is required")
)

// StreamMetricsSource supplies engagement metrics for the dashboard.
type StreamMetricsSource interface {
	Metrics() capability.StreamMetrics
}

// SubmitResult reports what happened to a submitted proposal. Exactly one of
// Intake and Violations is set.
type SubmitResult struct {
	Accepted   bool                     `json:"accepted"`
	Intake     *governance.IntakeResult `json:"intake,omitempty"`
	Violations validation.Violations    `json:"violations,omitempty"`
}

// Dashboard is the read-only aggregate served to operators.
type Dashboard struct {
	PendingIntents     []governance.PendingIntent `json:"pendingIntents"`
	SystemStats        governance.Stats           `json:"systemStats"`
	RecentAuditEntries []governance.AuditEntry    `json:"recentAuditEntries"`
	StreamMetrics      *capability.StreamMetrics  `json:"streamMetrics,omitempty"`
	ValidationStats    validation.LedgerStats     `json:"validationStats"`
	Config             governance.Config          `json:"config"`
	Modules            map[string]any             `json:"modules,omitempty"`
}

// Service ties validation to governance.
type Service struct {
	pipeline *governance.Pipeline
	ledger   *validation.Ledger
	stream   StreamMetricsSource
	router   *capability.Router
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLedger records every validation outcome in l.
func WithLedger(l *validation.Ledger) Option {
	return func(s *Service) {
		if l != nil {
			s.ledger = l
		}
	}
}

// WithStreamMetrics adds engagement metrics to the dashboard.
func WithStreamMetrics(src StreamMetricsSource) Option {
	return func(s *Service) {
		s.stream = src
	}
}

// WithRouter adds module snapshots to the dashboard.
func WithRouter(r *capability.Router) Option {
	return func(s *Service) {
		s.router = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a Service over pipeline.
func New(pipeline *governance.Pipeline, opts ...Option) (*Service, error) {
	if pipeline == nil {
		return nil, ErrNilPipeline
	}
	s := &Service{
		pipeline: pipeline,
		ledger:   validation.NewLedger(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ledger returns the validation ledger.
func (s *Service) Ledger() *validation.Ledger {
	return s.ledger
}

// SubmitProposal validates raw and, when valid, admits it to the pipeline.
// Validation failures are reported in the result, not as an error; the
// error is reserved for the pipeline refusing intake.
func (s *Service) SubmitProposal(ctx context.Context, raw any, source governance.Source) (*SubmitResult, error) {
	res := validation.ValidateProposal(raw)
	s.ledger.RecordResult(res)
	if !res.Valid {
		s.logger.Info("proposal rejected by validation",
			zap.String("source", string(source)),
			zap.Int("violations", len(res.Violations)),
			zap.Error(res.Violations),
		)
		return &SubmitResult{Violations: res.Violations}, nil
	}
	return s.intake(ctx, *res.Data, source)
}

// SubmitProposalJSON is SubmitProposal over a JSON document.
func (s *Service) SubmitProposalJSON(ctx context.Context, data []byte, source governance.Source) (*SubmitResult, error) {
	return s.SubmitProposal(ctx, data, source)
}

// SubmitIntent validates a single intent and admits it as a proposal with
// no speech. kind narrows validation to one intent type; memory and trust
// intents use their dedicated validators. An empty kind accepts any type.
func (s *Service) SubmitIntent(ctx context.Context, kind intent.Type, raw any, source governance.Source) (*SubmitResult, error) {
	var res validation.IntentResult
	switch kind {
	case "":
		res = validation.ValidateSingleIntent(raw)
	case intent.TypeMemoryProposal:
		res = validation.ValidateMemoryProposal(raw)
	case intent.TypeTrustSignal:
		res = validation.ValidateTrustSignal(raw)
	default:
		res = validation.ValidateSingleIntent(raw)
		if res.Valid && res.Data.Kind() != kind {
			res = validation.IntentResult{Violations: validation.Violations{{
				Field:   "type",
				Message: fmt.Sprintf("expected %s, got %s", kind, res.Data.Kind()),
				Code:    validation.CodeEnumMismatch,
			}}}
		}
	}
	s.ledger.RecordAny(res)
	if !res.Valid {
		return &SubmitResult{Violations: res.Violations}, nil
	}
	return s.intake(ctx, intent.Proposal{Intents: []intent.Intent{res.Data}}, source)
}

func (s *Service) intake(ctx context.Context, p intent.Proposal, source governance.Source) (*SubmitResult, error) {
	ir, err := s.pipeline.Intake(ctx, p, source)
	if err != nil {
		return nil, fmt.Errorf("intake proposal: %w", err)
	}
	return &SubmitResult{Accepted: true, Intake: ir}, nil
}

// Decide applies an operator decision to the pending intent id.
func (s *Service) Decide(ctx context.Context, id string, decision Decision, actor, reason string) (*governance.DecisionResult, error) {
	if actor == "" {
		actor = DefaultActor
	}
	switch decision {
	case DecisionApprove:
		ar, err := s.pipeline.Approve(ctx, id, actor)
		if ar == nil {
			return nil, err
		}
		return &governance.DecisionResult{
			ID:      ar.ID,
			Status:  ar.Status,
			Message: approvalMessage(ar),
			Result:  ar.Result,
		}, err
	case DecisionReject:
		if reason == "" {
			reason = "rejected by " + actor
		}
		return s.pipeline.Reject(ctx, id, reason, actor)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
}

func approvalMessage(ar *governance.ApprovalResult) string {
	switch {
	case ar.Message != "":
		return ar.Message
	case ar.Result != nil && !ar.Result.Success:
		return fmt.Sprintf("approved with %d execution errors", len(ar.Result.Errors))
	}
	return "approved and executed"
}

// DashboardSnapshot aggregates pipeline, validation and module state. It
// never mutates anything.
func (s *Service) DashboardSnapshot() Dashboard {
	snap := s.pipeline.Snapshot()
	d := Dashboard{
		PendingIntents:     snap.Pending,
		SystemStats:        snap.Stats,
		RecentAuditEntries: snap.RecentAudit,
		ValidationStats:    s.ledger.Stats(),
		Config:             snap.Config,
	}
	if s.stream != nil {
		m := s.stream.Metrics()
		d.StreamMetrics = &m
	}
	if s.router != nil {
		d.Modules = s.router.Snapshots()
	}
	return d
}

// Config returns the pipeline configuration.
func (s *Service) Config() governance.Config {
	return s.pipeline.Config()
}

// UpdateConfig applies patch to the pipeline.
func (s *Service) UpdateConfig(ctx context.Context, patch governance.ConfigPatch) (governance.Config, error) {
	return s.pipeline.UpdateConfig(ctx, patch)
}
