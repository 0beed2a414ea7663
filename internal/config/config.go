// Package config loads helmd configuration.
//
// The sections helmd's own wiring needs (governance, server, nats) are typed
// here. Sections owned by other packages (logging, telemetry, privacy) are
// decoded on demand with Config.Unmarshal so those packages keep their own
// defaults and validation.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/knadh/koanf/v2"
)

// Config holds the complete helmd configuration.
type Config struct {
	Governance GovernanceConfig `koanf:"governance"`
	Server     ServerConfig     `koanf:"server"`
	NATS       NATSConfig       `koanf:"nats"`

	// Path is the file the configuration was loaded from, if any.
	Path string `koanf:"-"`

	k *koanf.Koanf
}

// GovernanceConfig mirrors the pipeline settings an operator may tune.
type GovernanceConfig struct {
	AutoApproveThreshold float64  `koanf:"auto_approve_threshold"`
	MemoryLocked         bool     `koanf:"memory_locked"`
	PersonaLocked        bool     `koanf:"persona_locked"`
	SimulationMode       bool     `koanf:"simulation_mode"`
	AuditEnabled         bool     `koanf:"audit_enabled"`
	MaxPendingIntents    int      `koanf:"max_pending_intents"`
	IntentTimeout        Duration `koanf:"intent_timeout"`
	ModerationTTL        Duration `koanf:"moderation_ttl"`
	WriteTTL             Duration `koanf:"write_ttl"`
	DefaultTTL           Duration `koanf:"default_ttl"`
	TickInterval         Duration `koanf:"tick_interval"`
	BatchSize            int      `koanf:"batch_size"`
	AuditCapacity        int      `koanf:"audit_capacity"`
	AuditTrimTo          int      `koanf:"audit_trim_to"`
	ResolvedRetention    int      `koanf:"resolved_retention"`
	ExecutionTimeout     Duration `koanf:"execution_timeout"`
}

// ServerConfig holds the HTTP control surface settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	AllowOrigins    []string `koanf:"allow_origins"`
	IntakeRate      float64  `koanf:"intake_rate"`
	IntakeBurst     int      `koanf:"intake_burst"`
	Heartbeat       Duration `koanf:"heartbeat"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// NATSConfig controls the optional event bridge.
type NATSConfig struct {
	Enabled        bool     `koanf:"enabled"`
	URL            string   `koanf:"url"`
	SubjectPrefix  string   `koanf:"subject_prefix"`
	Token          Secret   `koanf:"token"`
	RequestTimeout Duration `koanf:"request_timeout"`
}

// Default returns the configuration used when no file or env override is
// present.
func Default() *Config {
	return &Config{
		Governance: GovernanceConfig{
			AutoApproveThreshold: 0.9,
			AuditEnabled:         true,
			MaxPendingIntents:    100,
			IntentTimeout:        Duration(300 * time.Second),
			ModerationTTL:        Duration(60 * time.Second),
			WriteTTL:             Duration(300 * time.Second),
			DefaultTTL:           Duration(600 * time.Second),
			TickInterval:         Duration(time.Second),
			BatchSize:            5,
			AuditCapacity:        10000,
			AuditTrimTo:          5000,
			ResolvedRetention:    1000,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9090,
			AllowOrigins:    []string{"*"},
			IntakeRate:      10,
			IntakeBurst:     20,
			Heartbeat:       Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			SubjectPrefix:  "helmd",
			RequestTimeout: Duration(5 * time.Second),
		},
	}
}

// Validate checks the sections this package owns.
//
// Governance bounds are checked again by the pipeline; only the ones that
// would make the file unusable are rejected here.
func (c *Config) Validate() error {
	g := c.Governance
	if g.AutoApproveThreshold < 0 || g.AutoApproveThreshold > 1 {
		return fmt.Errorf("governance.auto_approve_threshold must be within [0, 1], got %v", g.AutoApproveThreshold)
	}
	if g.MaxPendingIntents < 0 {
		return fmt.Errorf("governance.max_pending_intents must not be negative, got %d", g.MaxPendingIntents)
	}
	if g.IntentTimeout.Duration() <= 0 {
		return errors.New("governance.intent_timeout must be positive")
	}
	if g.TickInterval.Duration() <= 0 {
		return errors.New("governance.tick_interval must be positive")
	}
	if g.BatchSize <= 0 {
		return fmt.Errorf("governance.batch_size must be positive, got %d", g.BatchSize)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.IntakeRate <= 0 || c.Server.IntakeBurst <= 0 {
		return errors.New("server intake rate and burst must be positive")
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return errors.New("nats.url is required when nats is enabled")
		}
		if c.NATS.SubjectPrefix == "" {
			return errors.New("nats.subject_prefix is required when nats is enabled")
		}
	}
	return nil
}

// Unmarshal decodes section into out. Keys absent from the loaded sources
// leave out's existing values untouched, so callers pass their defaults in.
func (c *Config) Unmarshal(section string, out any) error {
	if c.k == nil {
		return nil
	}
	if err := c.k.Unmarshal(section, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", section, err)
	}
	return nil
}
