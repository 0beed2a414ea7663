package capability

import (
	"context"
	"sync/atomic"

	"github.com/fyrsmithlabs/helmd/internal/intent"
)

// Simulated is the result a sandboxed execution reports in place of the
// module's real result.
type Simulated struct {
	Simulated  bool        `json:"simulated"`
	Module     string      `json:"module"`
	IntentType intent.Type `json:"intentType"`
}

// Sandbox wraps a module so that executions are reported but never applied.
type Sandbox struct {
	inner    Module
	executed atomic.Int64
}

// NewSandbox wraps inner.
func NewSandbox(inner Module) *Sandbox {
	return &Sandbox{inner: inner}
}

func (s *Sandbox) Name() string { return "sandbox:" + s.inner.Name() }

func (s *Sandbox) Execute(_ context.Context, in intent.Intent) (Outcome, error) {
	s.executed.Add(1)
	return Outcome{
		ActionType: ActionFor(in.Kind()),
		Target:     TargetOf(in),
		Result:     Simulated{Simulated: true, Module: s.inner.Name(), IntentType: in.Kind()},
	}, nil
}

// Snapshot returns the wrapped module's snapshot; the sandbox never changes it.
func (s *Sandbox) Snapshot() any {
	return s.inner.Snapshot()
}

// Simulations returns how many executions the sandbox absorbed.
func (s *Sandbox) Simulations() int64 {
	return s.executed.Load()
}
