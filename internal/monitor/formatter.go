package monitor

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// FormatPercentage formats a ratio (0-1) as a percentage.
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatAge renders how long ago t was, relative to now.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return FormatDuration(now.Sub(t)) + " ago"
}

// FormatRemaining renders the time left until deadline, or "expired".
func FormatRemaining(deadline, now time.Time) string {
	if deadline.IsZero() {
		return "-"
	}
	left := deadline.Sub(now)
	if left <= 0 {
		return "expired"
	}
	return FormatDuration(left)
}

// FormatDuration renders d as "Xh Ym", "Xm Ys" or "Xs".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	seconds := int64(d / time.Second)
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	}
	return fmt.Sprintf("%ds", seconds)
}

// Truncate shortens s to at most n runes, marking the cut with "…".
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

// intentTypes lists a proposal's intent types for one table cell.
func intentTypes(p ProposalView) string {
	if len(p.Intents) == 0 {
		return "(speech only)"
	}
	out := p.Intents[0].Type
	for _, in := range p.Intents[1:] {
		out += "," + in.Type
	}
	return out
}

// minConfidence is the lowest confidence in the proposal, which is what
// gates auto-approval.
func minConfidence(p ProposalView) float64 {
	if len(p.Intents) == 0 {
		return 0
	}
	lowest := p.Intents[0].Confidence
	for _, in := range p.Intents[1:] {
		if in.Confidence < lowest {
			lowest = in.Confidence
		}
	}
	return lowest
}
