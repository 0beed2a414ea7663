package privacy

import (
	"sort"
	"sync"
)

// Redactor removes identifying and secret text from content before it is
// stored or surfaced.
type Redactor interface {
	// Redact replaces every finding with the configured placeholder.
	Redact(content string) *Result

	// Check reports findings without altering the content.
	Check(content string) *Result

	// Enabled reports whether redaction is active.
	Enabled() bool
}

type redactor struct {
	config *Config
	mu     sync.RWMutex
}

type span struct {
	start, end int
}

// New creates a Redactor. A nil cfg uses DefaultConfig.
func New(cfg *Config) (Redactor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &redactor{config: cfg}, nil
}

// MustNew is New that panics on an invalid configuration.
func MustNew(cfg *Config) Redactor {
	r, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *redactor) Enabled() bool {
	return r.config.Enabled
}

func (r *redactor) Check(content string) *Result {
	res := r.Redact(content)
	res.Redacted = content
	return res
}

func (r *redactor) Redact(content string) *Result {
	res := &Result{Redacted: content, ByRule: make(map[string]int)}
	if !r.config.Enabled {
		return res
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var spans []span
	for _, rule := range r.config.compiledRules {
		if !keywordsPresent(rule, content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if r.allowed(content[m[0]:m[1]]) {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				RuleID:   rule.ID,
				Category: rule.Category,
				Start:    m[0],
				End:      m[1],
			})
			res.ByRule[rule.ID]++
			spans = append(spans, span{start: m[0], end: m[1]})
		}
	}
	if len(spans) == 0 {
		return res
	}

	merged := mergeSpans(spans)
	out := make([]byte, 0, len(content))
	last := 0
	for _, s := range merged {
		out = append(out, content[last:s.start]...)
		out = append(out, r.config.Placeholder...)
		last = s.end
	}
	out = append(out, content[last:]...)
	res.Redacted = string(out)
	return res
}

func keywordsPresent(rule *compiledRule, content string) bool {
	if len(rule.keywords) == 0 {
		return true
	}
	for _, kw := range rule.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func (r *redactor) allowed(match string) bool {
	for _, re := range r.config.compiledAllowList {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// mergeSpans sorts spans and joins overlapping ones.
func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Noop is a Redactor that never changes content.
type Noop struct{}

func (Noop) Redact(content string) *Result {
	return &Result{Redacted: content, ByRule: map[string]int{}}
}

func (n Noop) Check(content string) *Result { return n.Redact(content) }

func (Noop) Enabled() bool { return false }

var (
	_ Redactor = (*redactor)(nil)
	_ Redactor = Noop{}
)
