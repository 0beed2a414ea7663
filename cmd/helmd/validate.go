package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/helmd/internal/config"
	"github.com/fyrsmithlabs/helmd/internal/validation"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	fieldStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// errInvalidProposal is returned after the violations have been printed.
var errInvalidProposal = errors.New("proposal is invalid")

func newValidateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [proposal-file]",
		Short: "Check the configuration and optionally a proposal",
		Long: `Load and validate the configuration, then validate a proposal document
offline when one is given. Use "-" to read the proposal from stdin.

Examples:
  # Check the config only
  helmd validate --config ~/.config/helmd/config.toml

  # Check a proposal the agent produced
  helmd validate proposal.json
  agent-emit | helmd validate -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := config.Load(flags.configPath)
			if err != nil {
				fmt.Fprintln(out, failStyle.Render("✗ config"), err)
				return err
			}
			source := cfg.Path
			if source == "" {
				source = "defaults"
			}
			fmt.Fprintln(out, okStyle.Render("✓ config"), dimStyle.Render(source))

			if len(args) == 0 {
				return nil
			}
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return printValidation(out, validation.ValidateProposalJSON(data))
		},
	}
}

func printValidation(out io.Writer, res validation.Result) error {
	if res.Valid {
		fmt.Fprintf(out, "%s %d intent(s)\n", okStyle.Render("✓ proposal"), len(res.Data.Intents))
		return nil
	}
	fmt.Fprintf(out, "%s %d violation(s)\n", failStyle.Render("✗ proposal"), len(res.Violations))
	for _, v := range res.Violations {
		field := v.Field
		if field == "" {
			field = "(root)"
		}
		fmt.Fprintf(out, "  %s %s %s\n", fieldStyle.Render(field), v.Message, dimStyle.Render("["+string(v.Code)+"]"))
	}
	return errInvalidProposal
}

// readInput reads a file, or stdin when name is "-".
func readInput(stdin io.Reader, name string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", name, err)
		}
	}
	if len(data) == 0 {
		return nil, errors.New("no input")
	}
	return data, nil
}
