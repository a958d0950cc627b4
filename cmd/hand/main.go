// Command hand is the han coordinator daemon and its control CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheBushidoCollective/han-sub006/internal/config"
)

var configFlag string

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hand",
		Short: "Coordinator daemon for coding-agent sessions and plugin hooks",
		Long: `hand indexes coding-agent session logs and runs plugin hooks through a
deduplicating queue. One daemon leads at a time; clients fall back to
running hooks locally when no daemon is reachable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file")

	root.AddCommand(
		newDaemonCmd(),
		newStatusCmd(),
		newSessionsCmd(),
		newQueueCmd(),
		newHookCmd(),
		newEventsCmd(),
		newConfigCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, _, _, err := config.Load(configFlag)
	return cfg, err
}
