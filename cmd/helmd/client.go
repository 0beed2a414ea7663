package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/helmd/internal/monitor"
)

// requestTimeout bounds each one-shot client command.
const requestTimeout = 10 * time.Second

func newSubmitCmd(flags *globalFlags) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "submit [proposal-file]",
		Short: "Submit a proposal to a running daemon",
		Long: `Submit a proposal document for validation and intake. Reads stdin when no
file is given or the file is "-".

Examples:
  # Submit as the operator
  helmd submit proposal.json --source operator

  # Pipe from the agent
  agent-emit | helmd submit`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "-"
			if len(args) == 1 {
				name = args[0]
			}
			data, err := readInput(cmd.InOrStdin(), name)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			res, err := monitor.NewClient(flags.serverURL).Submit(ctx, data, source)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !res.Accepted {
				fmt.Fprintf(out, "%s %d violation(s)\n", failStyle.Render("✗ rejected"), len(res.Violations))
				for _, v := range res.Violations {
					fmt.Fprintf(out, "  %s %s %s\n", fieldStyle.Render(v.Field), v.Message, dimStyle.Render("["+v.Code+"]"))
				}
				return errInvalidProposal
			}
			if res.Intake == nil {
				return errors.New("server accepted the proposal without an intake result")
			}
			fmt.Fprintf(out, "%s %s\n", okStyle.Render("✓ "+res.Intake.Status), res.Intake.ID)
			fmt.Fprintf(out, "  priority: %s\n  %s\n", res.Intake.Priority, dimStyle.Render(res.Intake.Message))
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "proposal source: proposer, operator or simulation")
	return cmd
}

func newApproveCmd(flags *globalFlags) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "approve <intent-id>",
		Short: "Approve a pending intent and execute it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecision(cmd, flags, args[0], "approve", actor, "")
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "who is deciding (default operator)")
	return cmd
}

func newRejectCmd(flags *globalFlags) *cobra.Command {
	var actor, reason string
	cmd := &cobra.Command{
		Use:   "reject <intent-id>",
		Short: "Reject a pending intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecision(cmd, flags, args[0], "reject", actor, reason)
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "who is deciding (default operator)")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit log")
	return cmd
}

func runDecision(cmd *cobra.Command, flags *globalFlags, id, decision, actor, reason string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	res, err := monitor.NewClient(flags.serverURL).Decide(ctx, id, decision, actor, reason)
	if errors.Is(err, monitor.ErrNotFound) {
		return fmt.Errorf("intent %s is not pending", id)
	}
	if err != nil {
		return err
	}

	style := okStyle
	if res.Status == "error" {
		style = failStyle
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n  %s\n", style.Render(res.Status), res.ID, res.Message)
	return nil
}

func newHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon health",
		Long: `Check the health status of a running helmd daemon.

Examples:
  helmd health
  helmd health --server http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			status, err := monitor.NewClient(flags.serverURL).Health(ctx)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server status: %s\n", status)
			return nil
		},
	}
}
