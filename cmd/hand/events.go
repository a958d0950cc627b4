package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheBushidoCollective/han-sub006/internal/ipc"
)

func newEventsCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent coordinator events",
		Long: `Prints the coordinator's buffered events. The buffer is bounded and
drops its oldest entries under load, so this is a live view, not a
history.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			conn, err := ipc.DialTimeout(cfg.SocketPath(), cfg.ProbeTimeout())
			if err != nil {
				return fmt.Errorf("coordinator not running: %w", err)
			}
			defer conn.Close()

			var cursor uint64
			for {
				args := ipc.EventsArgs{Since: cursor}
				if follow {
					args.WaitSeconds = 30
				}
				reply, err := conn.Events(args)
				if err != nil {
					return fmt.Errorf("fetch events: %w", err)
				}
				for _, event := range reply.Events {
					line := fmt.Sprintf("%s  %-16s", formatTimestamp(event.Timestamp), event.Kind)
					if event.SessionID != "" {
						line += "  session=" + event.SessionID
					}
					if event.HookID != "" {
						line += "  hook=" + event.HookID
					}
					if event.Detail != "" {
						line += "  " + event.Detail
					}
					fmt.Println(line)
				}
				cursor = reply.Cursor
				if !follow {
					return nil
				}
				if cmd.Context().Err() != nil {
					return nil
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep streaming new events")
	return cmd
}
