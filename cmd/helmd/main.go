// Helmd is the governance daemon that sits between an autonomous agent and
// the modules it wants to act through, plus the operator CLI that talks to it.
//
// Usage:
//
//	# Start the daemon with ~/.config/helmd/config.yaml
//	helmd serve
//
//	# Review the queue interactively
//	helmd monitor
//
//	# Decide one intent
//	helmd approve 3f0c9a7e-...
//	helmd reject 3f0c9a7e-... --reason "off topic"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags are the persistent flags every subcommand can read.
type globalFlags struct {
	configPath string
	serverURL  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "helmd",
		Short: "Governance daemon and operator CLI for agent proposals",
		Long: `helmd validates the proposals an autonomous agent emits, queues the ones
that need a human decision and executes approved intents against the
capability modules.

Run "helmd serve" to start the daemon; the other commands talk to a running
daemon over HTTP.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(versionString() + "\n")

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/helmd/config.yaml)")
	root.PersistentFlags().StringVar(&flags.serverURL, "server", "http://localhost:9090", "helmd server URL")

	root.AddCommand(
		newServeCmd(flags),
		newValidateCmd(flags),
		newSubmitCmd(flags),
		newApproveCmd(flags),
		newRejectCmd(flags),
		newHealthCmd(flags),
		newMonitorCmd(flags),
		newVersionCmd(),
	)
	return root
}

func versionString() string {
	return fmt.Sprintf("helmd %s (commit %s, built %s)", version, gitCommit, buildDate)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}
}
