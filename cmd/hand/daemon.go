package main

import (
	"github.com/spf13/cobra"

	"github.com/TheBushidoCollective/han-sub006/internal/daemonrun"
)

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the coordinator daemon",
		Long: `Runs the coordinator in the foreground. The process competes for the
singleton lease: the winner indexes session logs and serves the hook
queue, others wait as standbys and take over if the leader dies.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cfg)
		},
	}
}
