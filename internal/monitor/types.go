package monitor

import "time"

// Snapshot is the subset of the operator dashboard the console renders.
type Snapshot struct {
	PendingIntents     []PendingView   `json:"pendingIntents"`
	SystemStats        Stats           `json:"systemStats"`
	RecentAuditEntries []AuditView     `json:"recentAuditEntries"`
	StreamMetrics      *StreamView     `json:"streamMetrics,omitempty"`
	ValidationStats    ValidationStats `json:"validationStats"`
	Config             ConfigView      `json:"config"`
}

// PendingView is a pending intent as the dashboard serves it.
type PendingView struct {
	ID         string       `json:"id"`
	Proposal   ProposalView `json:"proposal"`
	ReceivedAt time.Time    `json:"receivedAt"`
	ExpiresAt  time.Time    `json:"expiresAt"`
	Source     string       `json:"source"`
	Priority   string       `json:"priority"`
}

// ProposalView keeps the fields an operator needs to decide.
type ProposalView struct {
	Speech  string       `json:"speech"`
	Intents []IntentView `json:"intents"`
}

// IntentView is the common header of every intent variant.
type IntentView struct {
	Type          string  `json:"type"`
	Confidence    float64 `json:"confidence"`
	Justification string  `json:"justification"`
}

// Stats mirrors the pipeline counters.
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
}

// AuditView is one audit trail line.
type AuditView struct {
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Action    string    `json:"action"`
	IntentID  string    `json:"intentId"`
}

// StreamView carries the engagement figures.
type StreamView struct {
	TotalEvents int     `json:"totalEvents"`
	HypeLevel   float64 `json:"hypeLevel"`
}

// ValidationStats mirrors the validation ledger summary.
type ValidationStats struct {
	Total        int64   `json:"total"`
	Rejected     int64   `json:"rejected"`
	ValidityRate float64 `json:"validityRate"`
}

// ConfigView lists the flags shown in the header.
type ConfigView struct {
	AutoApproveThreshold float64 `json:"autoApproveThreshold"`
	MemoryLocked         bool    `json:"memoryLocked"`
	PersonaLocked        bool    `json:"personaLocked"`
	SimulationMode       bool    `json:"simulationMode"`
	MaxPendingIntents    int     `json:"maxPendingIntents"`
}

// DecisionOutcome is the reply to an approve or reject.
type DecisionOutcome struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SubmitOutcome is the reply to a proposal submission.
type SubmitOutcome struct {
	Accepted bool `json:"accepted"`
	Intake   *struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Priority string `json:"priority"`
		Message  string `json:"message"`
	} `json:"intake,omitempty"`
	Violations []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"violations,omitempty"`
}
