// Package monitor implements the helmd operator console: a terminal
// dashboard over the operator API that shows pipeline health and lets an
// operator approve or reject pending intents.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	auditLines      = 5
	requestTimeout  = 5 * time.Second
)

// Decisions sent by the console.
const (
	decisionApprove = "approve"
	decisionReject  = "reject"
)

// Model is the bubbletea console model.
type Model struct {
	client   *Client
	actor    string
	interval time.Duration
	now      func() time.Time

	snapshot   Snapshot
	lastUpdate time.Time
	err        error
	notice     string
	quitting   bool
	cursor     int

	pendingHistory []float64
	intakeHistory  []float64
	lastReceived   int64
	haveBaseline   bool

	validityBar progress.Model
	hypeBar     progress.Model
}

// Console styles.
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("45"))

	healthyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).MarginTop(1)
	footerKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true)
	sparkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
)

// NewModel creates a console that refreshes from client every interval and
// records decisions as actor.
func NewModel(client *Client, actor string, interval time.Duration) Model {
	if actor == "" {
		actor = "operator"
	}
	return Model{
		client:         client,
		actor:          actor,
		interval:       interval,
		now:            time.Now,
		pendingHistory: make([]float64, 0, historySize),
		intakeHistory:  make([]float64, 0, historySize),
		validityBar: progress.New(
			progress.WithGradient("#ff0000", "#00ff00"),
			progress.WithWidth(40),
		),
		hypeBar: progress.New(
			progress.WithGradient("#00ffff", "#ff00ff"),
			progress.WithWidth(40),
		),
	}
}

type (
	tickMsg     time.Time
	snapshotMsg Snapshot
	errMsg      error
	decisionMsg struct {
		outcome DecisionOutcome
		err     error
	}
)

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), fetchSnapshot(m.client))
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshot(client *Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		snap, err := client.Dashboard(ctx)
		if err != nil {
			return errMsg(err)
		}
		return snapshotMsg(snap)
	}
}

func decide(client *Client, id, decision, actor string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		out, err := client.Decide(ctx, id, decision, actor, "")
		return decisionMsg{outcome: out, err: err}
	}
}

// Update handles key presses, refresh ticks and API replies.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m, tea.Batch(tick(m.interval), fetchSnapshot(m.client))

	case snapshotMsg:
		m.applySnapshot(Snapshot(msg))
		return m, nil

	case decisionMsg:
		if msg.err != nil {
			m.notice = errorStyle.Render("✗ " + msg.err.Error())
		} else {
			m.notice = healthyStyle.Render(fmt.Sprintf("✓ %s: %s", Truncate(msg.outcome.ID, 8), msg.outcome.Message))
		}
		return m, fetchSnapshot(m.client)

	case errMsg:
		m.err = error(msg)
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "r":
		return m, fetchSnapshot(m.client)
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.snapshot.PendingIntents)-1 {
			m.cursor++
		}
	case "a", "x":
		selected, ok := m.selected()
		if !ok {
			m.notice = dimStyle.Render("nothing pending")
			return m, nil
		}
		decision := decisionApprove
		if msg.String() == "x" {
			decision = decisionReject
		}
		m.notice = dimStyle.Render(fmt.Sprintf("%s %s…", decision, Truncate(selected.ID, 8)))
		return m, decide(m.client, selected.ID, decision, m.actor)
	}
	return m, nil
}

func (m *Model) applySnapshot(snap Snapshot) {
	m.pendingHistory = appendToHistory(m.pendingHistory, float64(len(snap.PendingIntents)))
	if m.haveBaseline {
		delta := snap.SystemStats.Received - m.lastReceived
		if delta < 0 {
			delta = 0
		}
		m.intakeHistory = appendToHistory(m.intakeHistory, float64(delta))
	}
	m.lastReceived = snap.SystemStats.Received
	m.haveBaseline = true

	m.snapshot = snap
	if m.cursor >= len(snap.PendingIntents) {
		m.cursor = max(len(snap.PendingIntents)-1, 0)
	}
	m.lastUpdate = m.now()
	m.err = nil
}

func (m Model) selected() (PendingView, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snapshot.PendingIntents) {
		return PendingView{}, false
	}
	return m.snapshot.PendingIntents[m.cursor], true
}

func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}
	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()
	return sparkStyle.Render(spark.View())
}

// backlogBadge grades the pending backlog against the advisory limit.
func backlogBadge(pending, limit int) string {
	if limit <= 0 {
		return healthyStyle.Render("✓ OK")
	}
	ratio := float64(pending) / float64(limit)
	switch {
	case ratio < 0.5:
		return healthyStyle.Render("✓ OK")
	case ratio <= 1:
		return warningStyle.Render("⚠ BACKLOG")
	}
	return errorStyle.Render("✗ OVER LIMIT")
}

func flag(name string, on bool) string {
	if on {
		return warningStyle.Render(name)
	}
	return dimStyle.Render(name)
}

// View renders the console.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(" helmd Console ") + "\n\n")
	b.WriteString(errorStyle.Render("⚠ Cannot reach helmd") + "\n\n")
	b.WriteString(dimStyle.Render("URL: ") + valueStyle.Render(m.client.BaseURL()) + "\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n")
	b.WriteString(dimStyle.Render("Start the daemon with `helmd serve` or pass --server.") + "\n")
	b.WriteString(footerStyle.Render("[q] quit  [r] retry") + "\n")
	return containerStyle.Render(b.String())
}

func (m Model) renderDashboard() string {
	snap := m.snapshot
	stats := snap.SystemStats
	now := m.now()

	lastUpdate := "never"
	if !m.lastUpdate.IsZero() {
		lastUpdate = m.lastUpdate.Format("15:04:05")
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(" helmd Console ") + "\n")
	fmt.Fprintf(&b, "%s   %s %s   %s %s %s   %s\n",
		backlogBadge(len(snap.PendingIntents), snap.Config.MaxPendingIntents),
		dimStyle.Render("auto ≥"),
		valueStyle.Render(fmt.Sprintf("%.2f", snap.Config.AutoApproveThreshold)),
		flag("memory-locked", snap.Config.MemoryLocked),
		flag("persona-locked", snap.Config.PersonaLocked),
		flag("simulation", snap.Config.SimulationMode),
		dimStyle.Render(lastUpdate),
	)

	b.WriteString("\n" + sectionStyle.Render("┃ Pipeline") + "\n")
	fmt.Fprintf(&b, "%s%s  %s%s  %s%s  %s%s  %s%s  %s%s\n",
		labelStyle.Render("  Received: "), valueStyle.Render(fmt.Sprint(stats.Received)),
		labelStyle.Render("Approved: "), valueStyle.Render(fmt.Sprintf("%d (%d auto)", stats.Approved, stats.AutoApproved)),
		labelStyle.Render("Rejected: "), valueStyle.Render(fmt.Sprint(stats.Rejected)),
		labelStyle.Render("Expired: "), valueStyle.Render(fmt.Sprint(stats.Expired)),
		labelStyle.Render("Exec errors: "), valueStyle.Render(fmt.Sprint(stats.ExecutionErrors)),
		labelStyle.Render("Queue: "), valueStyle.Render(fmt.Sprint(stats.QueueDepth)),
	)
	b.WriteString(labelStyle.Render("  Pending: ") +
		valueStyle.Render(fmt.Sprintf("%-4d", len(snap.PendingIntents))) +
		"   " + createSparkline(m.pendingHistory) + "\n")
	b.WriteString(labelStyle.Render("  Intake/refresh: ") +
		"   " + createSparkline(m.intakeHistory) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ Validation") + "\n")
	b.WriteString(labelStyle.Render("  Validity: ") +
		m.validityBar.ViewAs(clamp(snap.ValidationStats.ValidityRate)) + " " +
		dimStyle.Render(fmt.Sprintf("%s of %d", FormatPercentage(snap.ValidationStats.ValidityRate), snap.ValidationStats.Total)) + "\n")

	if snap.StreamMetrics != nil {
		b.WriteString("\n" + sectionStyle.Render("┃ Engagement") + "\n")
		b.WriteString(labelStyle.Render("  Hype: ") +
			m.hypeBar.ViewAs(clamp(snap.StreamMetrics.HypeLevel)) + " " +
			dimStyle.Render(fmt.Sprintf("%d events", snap.StreamMetrics.TotalEvents)) + "\n")
	}

	b.WriteString("\n" + sectionStyle.Render("┃ Pending Intents") + "\n")
	if len(snap.PendingIntents) == 0 {
		b.WriteString(dimStyle.Render("  nothing awaiting review") + "\n")
	}
	for i, pi := range snap.PendingIntents {
		row := fmt.Sprintf(" %-8s %-8s %-32s %4.2f  %-10s %s ",
			Truncate(pi.ID, 8),
			pi.Priority,
			Truncate(intentTypes(pi.Proposal), 32),
			minConfidence(pi.Proposal),
			pi.Source,
			FormatRemaining(pi.ExpiresAt, now),
		)
		if i == m.cursor {
			b.WriteString(">" + selectedStyle.Render(row) + "\n")
			if pi.Proposal.Speech != "" {
				b.WriteString(dimStyle.Render("    “"+Truncate(pi.Proposal.Speech, 60)+"”") + "\n")
			}
			for _, in := range pi.Proposal.Intents {
				b.WriteString(dimStyle.Render(fmt.Sprintf("    %s: %s", in.Type, Truncate(in.Justification, 60))) + "\n")
			}
			continue
		}
		b.WriteString(" " + row + "\n")
	}

	b.WriteString("\n" + sectionStyle.Render("┃ Recent Audit") + "\n")
	audit := snap.RecentAuditEntries
	if len(audit) > auditLines {
		audit = audit[len(audit)-auditLines:]
	}
	for _, e := range audit {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %s  %-9s %-9s %s",
			e.Timestamp.Format("15:04:05"), e.Category, e.Action, Truncate(e.IntentID, 8))) + "\n")
	}

	if m.notice != "" {
		b.WriteString("\n" + m.notice + "\n")
	}

	b.WriteString("\n" +
		footerKeyStyle.Render("[↑/↓]") + footerStyle.Render(" select  ") +
		footerKeyStyle.Render("[a]") + footerStyle.Render(" approve  ") +
		footerKeyStyle.Render("[x]") + footerStyle.Render(" reject  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerStyle.Render(fmt.Sprintf("auto: %v", m.interval)))

	return containerStyle.Render(b.String())
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
