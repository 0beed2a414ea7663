package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{4 * time.Minute, "4m 0s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
		{-30 * time.Second, "30s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), tt.in.String())
	}
}

func TestFormatAgeAndRemaining(t *testing.T) {
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, "-", FormatAge(time.Time{}, now))
	assert.Equal(t, "5m 0s ago", FormatAge(now.Add(-5*time.Minute), now))

	assert.Equal(t, "-", FormatRemaining(time.Time{}, now))
	assert.Equal(t, "expired", FormatRemaining(now.Add(-time.Second), now))
	assert.Equal(t, "1m 0s", FormatRemaining(now.Add(time.Minute), now))
}

func TestFormatPercentage(t *testing.T) {
	assert.Equal(t, "80.0%", FormatPercentage(0.8))
	assert.Equal(t, "0.0%", FormatPercentage(0))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 8))
	assert.Equal(t, "abcdefg…", Truncate("abcdefghij", 8))
	assert.Equal(t, "héll…", Truncate("héllo wörld", 5))
	assert.Equal(t, "keep", Truncate("keep", 0))
}

func TestIntentSummaries(t *testing.T) {
	p := ProposalView{Intents: []IntentView{
		{Type: "game_event", Confidence: 0.9},
		{Type: "trust_signal", Confidence: 0.75},
	}}
	assert.Equal(t, "game_event,trust_signal", intentTypes(p))
	assert.Equal(t, 0.75, minConfidence(p))

	assert.Equal(t, "(speech only)", intentTypes(ProposalView{}))
	assert.Zero(t, minConfidence(ProposalView{}))
}
