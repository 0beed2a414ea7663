package privacy

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Config configures the redactor.
type Config struct {
	// Enabled controls whether redaction is active (default: true)
	Enabled bool `koanf:"enabled" toml:"enabled"`

	// Placeholder replaces each redacted span (default: "[REDACTED]")
	Placeholder string `koanf:"placeholder" toml:"placeholder"`

	// RulesFile optionally points at a TOML file of extra rules.
	RulesFile string `koanf:"rules_file" toml:"-"`

	Rules []Rule `koanf:"rules" toml:"rules"`

	// AllowList holds patterns for matches that are never redacted.
	AllowList []string `koanf:"allow_list" toml:"allow_list"`

	compiledRules     []*compiledRule
	compiledAllowList []*regexp.Regexp
}

// Rule detects one kind of identifying or secret text.
type Rule struct {
	ID          string `koanf:"id" toml:"id"`
	Description string `koanf:"description" toml:"description"`
	Pattern     string `koanf:"pattern" toml:"pattern"`

	// Keywords gate the rule: when set, at least one must appear
	// (case-insensitively) somewhere in the content.
	Keywords []string `koanf:"keywords" toml:"keywords"`

	// Category is "pii" or "secret".
	Category string `koanf:"category" toml:"category"`
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig returns an enabled configuration with DefaultRules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		Placeholder: "[REDACTED]",
		Rules:       DefaultRules(),
	}
}

// rulesFile is the on-disk layout of a TOML rules file:
//
//	allow_list = ["example\\.com"]
//
//	[[rules]]
//	id = "discord-tag"
//	pattern = "[a-z0-9_.]{2,32}#[0-9]{4}"
//	category = "pii"
type rulesFile struct {
	Rules     []Rule   `toml:"rules"`
	AllowList []string `toml:"allow_list"`
}

// LoadRulesFile appends the rules and allow list found in a TOML file.
// Rules whose ID already exists replace the existing rule.
func (c *Config) LoadRulesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading rules file: %w", err)
	}
	var f rulesFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return fmt.Errorf("parsing rules file %s: %w", path, err)
	}

	index := make(map[string]int, len(c.Rules))
	for i, r := range c.Rules {
		index[r.ID] = i
	}
	for _, r := range f.Rules {
		if i, ok := index[r.ID]; ok {
			c.Rules[i] = r
			continue
		}
		index[r.ID] = len(c.Rules)
		c.Rules = append(c.Rules, r)
	}
	c.AllowList = append(c.AllowList, f.AllowList...)
	return nil
}

// Validate loads RulesFile when set, then compiles every pattern.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Placeholder == "" {
		c.Placeholder = "[REDACTED]"
	}
	if c.RulesFile != "" {
		if err := c.LoadRulesFile(c.RulesFile); err != nil {
			return err
		}
		c.RulesFile = ""
	}

	c.compiledRules = make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		compiled := &compiledRule{Rule: rule, pattern: pattern}
		for _, kw := range rule.Keywords {
			compiled.keywords = append(compiled.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		c.compiledRules = append(c.compiledRules, compiled)
	}

	c.compiledAllowList = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, p := range c.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		c.compiledAllowList = append(c.compiledAllowList, re)
	}
	return nil
}
