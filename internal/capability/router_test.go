package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/helmd/internal/intent"
)

func gameEvent() intent.GameEventIntent {
	return intent.GameEventIntent{
		Base:       intent.Base{Type: intent.TypeGameEvent, Confidence: 0.8, Justification: "big pot"},
		GameAction: intent.GameCelebrate,
		Intensity:  intent.IntensityHigh,
		Timing:     intent.TimingImmediate,
	}
}

func TestRouter_NoModule(t *testing.T) {
	r := NewRouter(map[intent.Type]Module{})
	_, err := r.Execute(context.Background(), gameEvent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoModule))
	assert.Equal(t, "no module for type game_event", err.Error())
}

func TestSuite_RoutesEveryType(t *testing.T) {
	s := NewSuite()
	r := s.Router()
	for _, typ := range intent.AllTypes() {
		m, err := r.Route(typ)
		require.NoError(t, err, typ)
		assert.NotNil(t, m)
	}

	trustMod, _ := r.Route(intent.TypeTrustSignal)
	modMod, _ := r.Route(intent.TypeModerationSuggestion)
	assert.Same(t, trustMod, modMod)

	names := make([]string, 0)
	for _, m := range r.Modules() {
		names = append(names, m.Name())
	}
	assert.Equal(t, []string{"engagement", "memory", "persona", "self_audit", "trust_safety"}, names)
	assert.Len(t, r.Snapshots(), 5)
}

func TestRouter_Execute(t *testing.T) {
	s := NewSuite()
	out, err := s.Router().Execute(context.Background(), gameEvent())
	require.NoError(t, err)
	assert.Equal(t, ActionEngagementEvent, out.ActionType)
	assert.Equal(t, "celebrate", out.Target)
	assert.Equal(t, 1, s.Engagement.Metrics().TotalEvents)
}

func TestRouter_Sandboxed(t *testing.T) {
	s := NewSuite()
	sandboxed := s.Router().Sandboxed()

	pm := intent.PersonaModeProposal{
		Base: intent.Base{Type: intent.TypePersonaMode, Confidence: 0.9, Justification: "chat wants it"},
		Mode: intent.ModeChaos,
	}
	out, err := sandboxed.Execute(context.Background(), pm)
	require.NoError(t, err)
	assert.Equal(t, ActionPersonaChange, out.ActionType)
	assert.Equal(t, "chaos", out.Target)
	sim, ok := out.Result.(Simulated)
	require.True(t, ok)
	assert.True(t, sim.Simulated)
	assert.Equal(t, "persona", sim.Module)

	assert.Equal(t, intent.ModeNeutral, s.Persona.Current(), "sandbox must not mutate")

	m, err := sandboxed.Route(intent.TypeTrustSignal)
	require.NoError(t, err)
	assert.Equal(t, "sandbox:trust_safety", m.Name())
	mm, _ := sandboxed.Route(intent.TypeModerationSuggestion)
	assert.Same(t, m, mm)
}

func TestModules_RejectForeignIntents(t *testing.T) {
	s := NewSuite()
	modules := []Module{s.Memory, s.Trust, s.Persona, s.SelfAudit}
	for _, m := range modules {
		_, err := m.Execute(context.Background(), gameEvent())
		assert.ErrorIs(t, err, ErrUnsupportedIntent, m.Name())
	}
}

func TestActionFor(t *testing.T) {
	for _, typ := range intent.AllTypes() {
		assert.NotEmpty(t, ActionFor(typ), typ)
	}
	assert.Empty(t, ActionFor("nope"))
}
