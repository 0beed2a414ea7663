package capability

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helmd/internal/intent"
)

// PersonaTransition is one mode switch.
type PersonaTransition struct {
	From intent.PersonaMode `json:"from"`
	To   intent.PersonaMode `json:"to"`
	At   time.Time          `json:"at"`
}

// PersonaSnapshot is the diagnostic view of the persona module.
type PersonaSnapshot struct {
	Current intent.PersonaMode  `json:"current"`
	History []PersonaTransition `json:"history"`
	Locked  bool                `json:"locked"`
}

// Persona tracks the active presentation mode.
type Persona struct {
	locks  *lockRef
	logger *zap.Logger
	now    func() time.Time
	limit  int

	mu      sync.Mutex
	current intent.PersonaMode
	history []PersonaTransition
}

// NewPersona starts in neutral mode.
func NewPersona(opts ...Option) *Persona {
	o := buildOptions(opts)
	p := &Persona{
		locks:   &lockRef{},
		logger:  o.logger.Named("persona"),
		now:     o.now,
		limit:   o.historyLimit,
		current: intent.ModeNeutral,
	}
	p.locks.set(o.locks)
	return p
}

func (p *Persona) Name() string { return "persona" }

// BindLocks replaces the lock source.
func (p *Persona) BindLocks(l Locks) { p.locks.set(l) }

func (p *Persona) Execute(_ context.Context, in intent.Intent) (Outcome, error) {
	pm, ok := in.(intent.PersonaModeProposal)
	if !ok {
		return Outcome{}, unsupported(p.Name(), in)
	}
	if p.locks.get().PersonaLocked() {
		return Outcome{}, &LockError{Domain: "persona"}
	}

	p.mu.Lock()
	tr := PersonaTransition{From: p.current, To: pm.Mode, At: p.now()}
	p.current = pm.Mode
	p.history = appendBounded(p.history, tr, p.limit)
	p.mu.Unlock()

	p.logger.Info("persona changed", zap.String("from", string(tr.From)), zap.String("to", string(tr.To)))
	return Outcome{ActionType: ActionPersonaChange, Target: string(pm.Mode), Result: tr}, nil
}

// Current returns the active mode.
func (p *Persona) Current() intent.PersonaMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Persona) Snapshot() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PersonaSnapshot{
		Current: p.current,
		History: append([]PersonaTransition(nil), p.history...),
		Locked:  p.locks.get().PersonaLocked(),
	}
}
