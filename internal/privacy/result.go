package privacy

import "sort"

// Result is the outcome of one redaction pass.
type Result struct {
	// Redacted is the content with findings replaced. For Check it equals
	// the input.
	Redacted string `json:"redacted"`

	// Findings never carry the matched text.
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"byRule,omitempty"`
}

// Finding locates one match in the original content.
type Finding struct {
	RuleID   string `json:"ruleId"`
	Category string `json:"category"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

// HasFindings reports whether anything matched.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// HasCategory reports whether any finding belongs to category.
func (r *Result) HasCategory(category string) bool {
	for _, f := range r.Findings {
		if f.Category == category {
			return true
		}
	}
	return false
}

// RuleIDs returns the matched rule IDs in sorted order.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
