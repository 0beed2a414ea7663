package governance

import (
	"encoding/json"
	"time"

	"github.com/fyrsmithlabs/helmd/internal/capability"
	"github.com/fyrsmithlabs/helmd/internal/intent"
)

// Source identifies who submitted a proposal.
type Source string

const (
	SourceProposer   Source = "proposer"
	SourceOperator   Source = "operator"
	SourceSimulation Source = "simulation"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceProposer, SourceOperator, SourceSimulation:
		return true
	}
	return false
}

// Priority orders pending intents in the dispatch queue.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	}
	return 0
}

// Status is the outcome reported to callers.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
	StatusError    Status = "error"
)

// Actors and reasons the pipeline uses on its own behalf.
const (
	ActorAuto     = "auto"
	ReasonExpired = "expired"
)

// PendingIntent is a proposal awaiting a decision.
type PendingIntent struct {
	ID         string          `json:"id"`
	Proposal   intent.Proposal `json:"proposal"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Source     Source          `json:"source"`
	Priority   Priority        `json:"priority"`
	TTL        time.Duration   `json:"-"`
}

// ExpiresAt is the instant after which the intent is swept.
func (p PendingIntent) ExpiresAt() time.Time {
	return p.ReceivedAt.Add(p.TTL)
}

func (p PendingIntent) MarshalJSON() ([]byte, error) {
	type alias PendingIntent
	return json.Marshal(struct {
		alias
		TTLMs     int64     `json:"ttlMs"`
		ExpiresAt time.Time `json:"expiresAt"`
	}{alias(p), p.TTL.Milliseconds(), p.ExpiresAt()})
}

// ExecutedAction is one side effect produced while executing an approval.
type ExecutedAction struct {
	ActionType capability.ActionType `json:"actionType"`
	Target     string                `json:"target"`
	Result     any                   `json:"result,omitempty"`
	// Deduplicated is set when the module found the change already applied.
	Deduplicated bool      `json:"deduplicated,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ExecutionResult collects the outcome of executing every intent of an
// approved proposal. Success is false if any intent failed; completed
// actions are kept either way.
type ExecutionResult struct {
	Success          bool             `json:"success"`
	Actions          []ExecutedAction `json:"actions"`
	Errors           []string         `json:"errors"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
}

// ApprovedIntent is the immutable record of an approval.
type ApprovedIntent struct {
	Intent     PendingIntent   `json:"intent"`
	ApprovedBy string          `json:"approvedBy"`
	ApprovedAt time.Time       `json:"approvedAt"`
	Result     ExecutionResult `json:"result"`
}

// RejectedIntent is the immutable record of a rejection or expiry.
type RejectedIntent struct {
	Intent     PendingIntent `json:"intent"`
	RejectedBy string        `json:"rejectedBy"`
	RejectedAt time.Time     `json:"rejectedAt"`
	Reason     string        `json:"reason"`
	Expired    bool          `json:"expired"`
}

// AuditAction is the transition an audit entry records.
type AuditAction string

const (
	AuditReceived AuditAction = "received"
	AuditApproved AuditAction = "approved"
	AuditRejected AuditAction = "rejected"
	AuditExecuted AuditAction = "executed"
	AuditError    AuditAction = "error"
)

// Audit categories.
const (
	CategoryIntake    = "intake"
	CategoryDecision  = "decision"
	CategoryExecution = "execution"
)

// AuditEntry is one state transition.
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Category  string         `json:"category"`
	Action    AuditAction    `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	IntentID  string         `json:"intentId,omitempty"`
}

// IntakeResult is returned by Intake.
type IntakeResult struct {
	ID       string          `json:"id"`
	Status   Status          `json:"status"`
	Priority Priority        `json:"priority"`
	Message  string          `json:"message"`
	Approval *ApprovalResult `json:"approval,omitempty"`
}

// ApprovalClaim is the intent_approved payload: the intent has left the
// queue and is about to execute.
type ApprovalClaim struct {
	ID         string        `json:"id"`
	ApprovedBy string        `json:"approvedBy"`
	ApprovedAt time.Time     `json:"approvedAt"`
	Intent     PendingIntent `json:"intent"`
}

// ApprovalResult is returned by Approve.
type ApprovalResult struct {
	ID      string           `json:"id"`
	Status  Status           `json:"status"`
	Message string           `json:"message,omitempty"`
	Result  *ExecutionResult `json:"result,omitempty"`
}

// DecisionResult is returned by Reject, and by callers that fold approvals
// and rejections into one shape.
type DecisionResult struct {
	ID      string           `json:"id"`
	Status  Status           `json:"status"`
	Message string           `json:"message"`
	Result  *ExecutionResult `json:"result,omitempty"`
}

// Stats are the pipeline's running counters.
type Stats struct {
	Received           int64 `json:"received"`
	Pending            int   `json:"pending"`
	Approved           int64 `json:"approved"`
	AutoApproved       int64 `json:"autoApproved"`
	Rejected           int64 `json:"rejected"`
	Expired            int64 `json:"expired"`
	ExecutionErrors    int64 `json:"executionErrors"`
	QueueDepth         int   `json:"queueDepth"`
	MaxPendingExceeded int64 `json:"maxPendingExceeded"`
	AuditEntries       int   `json:"auditEntries"`
}

// Snapshot is a read-only view of pipeline state.
type Snapshot struct {
	Pending     []PendingIntent `json:"pendingIntents"`
	Stats       Stats           `json:"systemStats"`
	RecentAudit []AuditEntry    `json:"recentAuditEntries"`
	Config      Config          `json:"config"`
}
