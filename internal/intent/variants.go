package intent

// MemoryScope controls how widely a memory is shared.
type MemoryScope string

const (
	ScopeEvent  MemoryScope = "event"
	ScopeStream MemoryScope = "stream"
	ScopeGlobal MemoryScope = "global"
)

// MemoryProposal asks to persist a summarized observation.
type MemoryProposal struct {
	Base
	Scope   MemoryScope `json:"scope"`
	Summary string      `json:"summary"`
}

func (MemoryProposal) Kind() Type { return TypeMemoryProposal }

// TrustCategory classifies the direction of a trust adjustment.
type TrustCategory string

const (
	TrustPositive TrustCategory = "positive"
	TrustNegative TrustCategory = "negative"
	TrustNeutral  TrustCategory = "neutral"
)

// TrustSource names what produced a trust signal.
type TrustSource string

const (
	SourceAISuggestion    TrustSource = "ai_suggestion"
	SourceUserAction      TrustSource = "user_action"
	SourceSystemDetection TrustSource = "system_detection"
)

// TrustSignal adjusts a user's trust score by a small, reversible delta.
type TrustSignal struct {
	Base
	UserID   string        `json:"userId"`
	Delta    float64       `json:"delta"`
	Category TrustCategory `json:"category"`
	Source   TrustSource   `json:"source"`
}

func (TrustSignal) Kind() Type { return TypeTrustSignal }

// PersonaMode is a presentation style the agent can switch into.
type PersonaMode string

const (
	ModeCalm        PersonaMode = "calm"
	ModeHype        PersonaMode = "hype"
	ModeNeutral     PersonaMode = "neutral"
	ModeChaos       PersonaMode = "chaos"
	ModeCommentator PersonaMode = "commentator"
)

// PersonaModeProposal asks to switch the active persona mode.
type PersonaModeProposal struct {
	Base
	Mode PersonaMode `json:"mode"`
}

func (PersonaModeProposal) Kind() Type { return TypePersonaMode }

// Severity grades a moderation suggestion.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ModerationAction is the sanction a moderation suggestion proposes.
type ModerationAction string

const (
	ActionShadowBan     ModerationAction = "shadow_ban"
	ActionRateLimit     ModerationAction = "rate_limit"
	ActionContentFilter ModerationAction = "content_filter"
)

// ModerationSuggestion proposes a sanction against a user. It always needs a
// human decision.
type ModerationSuggestion struct {
	Base
	UserID   string           `json:"userId"`
	Severity Severity         `json:"severity"`
	Action   ModerationAction `json:"action"`
	Evidence []string         `json:"evidence,omitempty"`
}

func (ModerationSuggestion) Kind() Type { return TypeModerationSuggestion }

// GameAction is how the agent reacts to a game event.
type GameAction string

const (
	GameObserve   GameAction = "observe"
	GameComment   GameAction = "comment"
	GameCelebrate GameAction = "celebrate"
	GameConsole   GameAction = "console"
)

// Intensity of a game event reaction.
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// Timing of a game event reaction.
type Timing string

const (
	TimingImmediate   Timing = "immediate"
	TimingDelayed     Timing = "delayed"
	TimingConditional Timing = "conditional"
)

// GameEventIntent proposes an on-stream reaction to something that happened
// in the game.
type GameEventIntent struct {
	Base
	GameAction GameAction `json:"gameAction"`
	Intensity  Intensity  `json:"intensity"`
	Timing     Timing     `json:"timing"`
}

func (GameEventIntent) Kind() Type { return TypeGameEvent }

// EvaluationType is the area a self-evaluation covers.
type EvaluationType string

const (
	EvalPerformance EvaluationType = "performance"
	EvalSafety      EvaluationType = "safety"
	EvalCompliance  EvaluationType = "compliance"
)

// Frequency of a self-evaluation.
type Frequency string

const (
	FrequencyPeriodic    Frequency = "periodic"
	FrequencyEventDriven Frequency = "event_driven"
	FrequencyManual      Frequency = "manual"
)

// SelfEvaluationIntent schedules the agent to answer audit questions about
// itself.
type SelfEvaluationIntent struct {
	Base
	EvaluationType EvaluationType `json:"evaluationType"`
	Questions      []string       `json:"questions"`
	Frequency      Frequency      `json:"frequency"`
}

func (SelfEvaluationIntent) Kind() Type { return TypeSelfEvaluation }

// Enumerations as plain strings, used by the validator for membership checks
// and error messages.
var (
	MemoryScopes      = []string{string(ScopeEvent), string(ScopeStream), string(ScopeGlobal)}
	TrustCategories   = []string{string(TrustPositive), string(TrustNegative), string(TrustNeutral)}
	TrustSources      = []string{string(SourceAISuggestion), string(SourceUserAction), string(SourceSystemDetection)}
	PersonaModes      = []string{string(ModeCalm), string(ModeHype), string(ModeNeutral), string(ModeChaos), string(ModeCommentator)}
	Severities        = []string{string(SeverityLow), string(SeverityMedium), string(SeverityHigh), string(SeverityCritical)}
	ModerationActions = []string{string(ActionShadowBan), string(ActionRateLimit), string(ActionContentFilter)}
	GameActions       = []string{string(GameObserve), string(GameComment), string(GameCelebrate), string(GameConsole)}
	Intensities       = []string{string(IntensityLow), string(IntensityMedium), string(IntensityHigh)}
	Timings           = []string{string(TimingImmediate), string(TimingDelayed), string(TimingConditional)}
	EvaluationTypes   = []string{string(EvalPerformance), string(EvalSafety), string(EvalCompliance)}
	Frequencies       = []string{string(FrequencyPeriodic), string(FrequencyEventDriven), string(FrequencyManual)}
)
