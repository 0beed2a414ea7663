package capability

import (
	"context"
	"sync"
	"time"

	"github.com/fyrsmithlabs/helmd/internal/intent"
)

// intensityWeight feeds the hype level.
var intensityWeight = map[intent.Intensity]float64{
	intent.IntensityLow:    0.2,
	intent.IntensityMedium: 0.5,
	intent.IntensityHigh:   1.0,
}

// hypeDecay is applied to the hype level before each new event.
const hypeDecay = 0.8

// GameReaction is one executed game event.
type GameReaction struct {
	Action    intent.GameAction `json:"action"`
	Intensity intent.Intensity  `json:"intensity"`
	Timing    intent.Timing     `json:"timing"`
	At        time.Time         `json:"at"`
}

// StreamMetrics summarizes on-stream engagement for the dashboard.
type StreamMetrics struct {
	TotalEvents int                       `json:"totalEvents"`
	ByAction    map[intent.GameAction]int `json:"byAction"`
	ByIntensity map[intent.Intensity]int  `json:"byIntensity"`
	HypeLevel   float64                   `json:"hypeLevel"`
	LastEvent   *GameReaction             `json:"lastEvent,omitempty"`
}

// Engagement counts the game reactions the agent performs.
type Engagement struct {
	now func() time.Time

	mu          sync.Mutex
	total       int
	byAction    map[intent.GameAction]int
	byIntensity map[intent.Intensity]int
	hype        float64
	last        *GameReaction
}

// NewEngagement creates an empty engagement module.
func NewEngagement(opts ...Option) *Engagement {
	o := buildOptions(opts)
	return &Engagement{
		now:         o.now,
		byAction:    make(map[intent.GameAction]int),
		byIntensity: make(map[intent.Intensity]int),
	}
}

func (e *Engagement) Name() string { return "engagement" }

func (e *Engagement) Execute(_ context.Context, in intent.Intent) (Outcome, error) {
	ge, ok := in.(intent.GameEventIntent)
	if !ok {
		return Outcome{}, unsupported(e.Name(), in)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r := GameReaction{Action: ge.GameAction, Intensity: ge.Intensity, Timing: ge.Timing, At: e.now()}
	e.total++
	e.byAction[ge.GameAction]++
	e.byIntensity[ge.Intensity]++
	e.hype = min(1, e.hype*hypeDecay+intensityWeight[ge.Intensity]*(1-hypeDecay))
	e.last = &r

	return Outcome{ActionType: ActionEngagementEvent, Target: string(ge.GameAction), Result: r}, nil
}

// Metrics returns the current stream metrics.
func (e *Engagement) Metrics() StreamMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := StreamMetrics{
		TotalEvents: e.total,
		ByAction:    make(map[intent.GameAction]int, len(e.byAction)),
		ByIntensity: make(map[intent.Intensity]int, len(e.byIntensity)),
		HypeLevel:   e.hype,
	}
	for k, v := range e.byAction {
		m.ByAction[k] = v
	}
	for k, v := range e.byIntensity {
		m.ByIntensity[k] = v
	}
	if e.last != nil {
		last := *e.last
		m.LastEvent = &last
	}
	return m
}

func (e *Engagement) Snapshot() any { return e.Metrics() }
