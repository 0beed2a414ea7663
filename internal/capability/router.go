package capability

import (
	"context"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/helmd/internal/intent"
)

// Router maps intent types to modules. The table is fixed at construction.
type Router struct {
	routes map[intent.Type]Module
}

// NewRouter builds a router from routes. Types absent from routes fail with
// ErrNoModule at execution time.
func NewRouter(routes map[intent.Type]Module) *Router {
	r := &Router{routes: make(map[intent.Type]Module, len(routes))}
	for t, m := range routes {
		if m != nil {
			r.routes[t] = m
		}
	}
	return r
}

// Route returns the module responsible for t.
func (r *Router) Route(t intent.Type) (Module, error) {
	m, ok := r.routes[t]
	if !ok {
		return nil, fmt.Errorf("%w for type %s", ErrNoModule, t)
	}
	return m, nil
}

// Execute routes in to its module and executes it.
func (r *Router) Execute(ctx context.Context, in intent.Intent) (Outcome, error) {
	m, err := r.Route(in.Kind())
	if err != nil {
		return Outcome{}, err
	}
	return m.Execute(ctx, in)
}

// Modules returns the distinct routed modules sorted by name.
func (r *Router) Modules() []Module {
	seen := make(map[string]bool)
	var out []Module
	for _, m := range r.routes {
		if seen[m.Name()] {
			continue
		}
		seen[m.Name()] = true
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Snapshots returns every module's snapshot keyed by module name.
func (r *Router) Snapshots() map[string]any {
	out := make(map[string]any)
	for _, m := range r.Modules() {
		out[m.Name()] = m.Snapshot()
	}
	return out
}

// Sandboxed returns a router with the same table where every module is
// wrapped in a Sandbox.
func (r *Router) Sandboxed() *Router {
	wrapped := make(map[string]*Sandbox)
	routes := make(map[intent.Type]Module, len(r.routes))
	for t, m := range r.routes {
		sb, ok := wrapped[m.Name()]
		if !ok {
			sb = NewSandbox(m)
			wrapped[m.Name()] = sb
		}
		routes[t] = sb
	}
	return &Router{routes: routes}
}

// Suite is the standard set of modules.
type Suite struct {
	Memory     *Memory
	Trust      *TrustSafety
	Persona    *Persona
	Engagement *Engagement
	SelfAudit  *SelfAudit
}

// NewSuite builds every module with the same options.
func NewSuite(opts ...Option) *Suite {
	return &Suite{
		Memory:     NewMemory(opts...),
		Trust:      NewTrustSafety(opts...),
		Persona:    NewPersona(opts...),
		Engagement: NewEngagement(opts...),
		SelfAudit:  NewSelfAudit(opts...),
	}
}

// BindLocks points the lock-aware modules at l.
func (s *Suite) BindLocks(l Locks) {
	s.Memory.BindLocks(l)
	s.Persona.BindLocks(l)
}

// Router returns the standard routing table over the suite.
func (s *Suite) Router() *Router {
	return NewRouter(map[intent.Type]Module{
		intent.TypeMemoryProposal:       s.Memory,
		intent.TypeTrustSignal:          s.Trust,
		intent.TypeModerationSuggestion: s.Trust,
		intent.TypePersonaMode:          s.Persona,
		intent.TypeGameEvent:            s.Engagement,
		intent.TypeSelfEvaluation:       s.SelfAudit,
	})
}
