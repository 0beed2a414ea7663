package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/helmd/internal/monitor"
)

func newMonitorCmd(flags *globalFlags) *cobra.Command {
	var (
		actor    string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Open the interactive operator console",
		Long: `Open a terminal console showing the pending queue, pipeline counters and
recent audit entries of a running daemon. Pending intents can be approved or
rejected from the console.

Keys: up/down select, a approve, x reject, r refresh, q quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}
			model := monitor.NewModel(monitor.NewClient(flags.serverURL), actor, interval)
			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("console: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "name recorded on decisions (default operator)")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	return cmd
}
