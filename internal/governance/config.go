package governance

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config holds the settings the pipeline consults on every decision.
type Config struct {
	// AutoApproveThreshold is the confidence every intent must meet for the
	// proposal to skip human review.
	AutoApproveThreshold float64 `json:"autoApproveThreshold"`

	// MemoryLocked and PersonaLocked force human review for their intent
	// types and make the modules refuse execution.
	MemoryLocked  bool `json:"memoryLocked"`
	PersonaLocked bool `json:"personaLocked"`

	// SimulationMode executes approvals against sandboxed modules.
	SimulationMode bool `json:"simulationMode"`

	AuditEnabled bool `json:"auditEnabled"`

	// MaxPendingIntents is advisory: exceeding it is counted and logged but
	// intake is never refused.
	MaxPendingIntents int `json:"maxPendingIntents"`

	// IntentTimeout is the TTL used when a per-class TTL is unset.
	IntentTimeout time.Duration `json:"-"`

	ModerationTTL time.Duration `json:"-"`
	WriteTTL      time.Duration `json:"-"`
	DefaultTTL    time.Duration `json:"-"`

	TickInterval time.Duration `json:"-"`
	BatchSize    int           `json:"batchSize"`

	AuditCapacity int `json:"auditCapacity"`
	AuditTrimTo   int `json:"auditTrimTo"`

	// ResolvedRetention bounds how many approved and rejected records are
	// kept for lookup.
	ResolvedRetention int `json:"resolvedRetention"`

	// ExecutionTimeout bounds each approval's module calls. Zero means
	// unbounded.
	ExecutionTimeout time.Duration `json:"-"`
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		AutoApproveThreshold: 0.9,
		AuditEnabled:         true,
		MaxPendingIntents:    100,
		IntentTimeout:        300 * time.Second,
		ModerationTTL:        60 * time.Second,
		WriteTTL:             300 * time.Second,
		DefaultTTL:           600 * time.Second,
		TickInterval:         time.Second,
		BatchSize:            5,
		AuditCapacity:        10000,
		AuditTrimTo:          5000,
		ResolvedRetention:    1000,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.AutoApproveThreshold < 0 || c.AutoApproveThreshold > 1:
		return fmt.Errorf("%w: auto approve threshold must be within [0, 1]", ErrInvalidConfig)
	case c.MaxPendingIntents < 0:
		return fmt.Errorf("%w: max pending intents must not be negative", ErrInvalidConfig)
	case c.IntentTimeout <= 0:
		return fmt.Errorf("%w: intent timeout must be positive", ErrInvalidConfig)
	case c.ModerationTTL < 0 || c.WriteTTL < 0 || c.DefaultTTL < 0:
		return fmt.Errorf("%w: TTLs must not be negative", ErrInvalidConfig)
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick interval must be positive", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	case c.AuditCapacity <= 0 || c.AuditTrimTo <= 0 || c.AuditTrimTo > c.AuditCapacity:
		return fmt.Errorf("%w: audit trim size must be within (0, capacity]", ErrInvalidConfig)
	case c.ResolvedRetention <= 0:
		return fmt.Errorf("%w: resolved retention must be positive", ErrInvalidConfig)
	case c.ExecutionTimeout < 0:
		return fmt.Errorf("%w: execution timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	return json.Marshal(struct {
		alias
		IntentTimeoutMs    int64 `json:"intentTimeoutMs"`
		ModerationTTLMs    int64 `json:"moderationTtlMs"`
		WriteTTLMs         int64 `json:"writeTtlMs"`
		DefaultTTLMs       int64 `json:"defaultTtlMs"`
		TickIntervalMs     int64 `json:"tickIntervalMs"`
		ExecutionTimeoutMs int64 `json:"executionTimeoutMs"`
	}{
		alias(c),
		c.IntentTimeout.Milliseconds(),
		c.ModerationTTL.Milliseconds(),
		c.WriteTTL.Milliseconds(),
		c.DefaultTTL.Milliseconds(),
		c.TickInterval.Milliseconds(),
		c.ExecutionTimeout.Milliseconds(),
	})
}

// ConfigPatch carries a partial update. Nil fields are left unchanged.
type ConfigPatch struct {
	AutoApproveThreshold *float64 `json:"autoApproveThreshold,omitempty"`
	MemoryLocked         *bool    `json:"memoryLocked,omitempty"`
	PersonaLocked        *bool    `json:"personaLocked,omitempty"`
	SimulationMode       *bool    `json:"simulationMode,omitempty"`
	AuditEnabled         *bool    `json:"auditEnabled,omitempty"`
	MaxPendingIntents    *int     `json:"maxPendingIntents,omitempty"`
	IntentTimeoutMs      *int64   `json:"intentTimeoutMs,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ConfigPatch) Empty() bool {
	return p == ConfigPatch{}
}

// Apply returns c with the patch's fields overlaid.
func (c Config) Apply(p ConfigPatch) Config {
	if p.AutoApproveThreshold != nil {
		c.AutoApproveThreshold = *p.AutoApproveThreshold
	}
	if p.MemoryLocked != nil {
		c.MemoryLocked = *p.MemoryLocked
	}
	if p.PersonaLocked != nil {
		c.PersonaLocked = *p.PersonaLocked
	}
	if p.SimulationMode != nil {
		c.SimulationMode = *p.SimulationMode
	}
	if p.AuditEnabled != nil {
		c.AuditEnabled = *p.AuditEnabled
	}
	if p.MaxPendingIntents != nil {
		c.MaxPendingIntents = *p.MaxPendingIntents
	}
	if p.IntentTimeoutMs != nil {
		c.IntentTimeout = time.Duration(*p.IntentTimeoutMs) * time.Millisecond
	}
	return c
}

// PatchFrom builds the patch that turns any config into c for the fields a
// patch can carry.
func PatchFrom(c Config) ConfigPatch {
	timeout := c.IntentTimeout.Milliseconds()
	return ConfigPatch{
		AutoApproveThreshold: &c.AutoApproveThreshold,
		MemoryLocked:         &c.MemoryLocked,
		PersonaLocked:        &c.PersonaLocked,
		SimulationMode:       &c.SimulationMode,
		AuditEnabled:         &c.AuditEnabled,
		MaxPendingIntents:    &c.MaxPendingIntents,
		IntentTimeoutMs:      &timeout,
	}
}
