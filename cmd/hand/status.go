package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheBushidoCollective/han-sub006/internal/ipc"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show coordinator status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			conn, err := ipc.DialTimeout(cfg.SocketPath(), cfg.ProbeTimeout())
			if err != nil {
				fmt.Println("Coordinator: not running")
				fmt.Printf("Socket:      %s\n", cfg.SocketPath())
				return nil
			}
			defer conn.Close()

			status, err := conn.Status()
			if err != nil {
				return fmt.Errorf("query status: %w", err)
			}

			role := "standby"
			if status.Leading {
				role = "leader"
			}
			fmt.Printf("Coordinator: running (%s, pid %d on %s)\n", role, status.PID, status.Hostname)
			fmt.Printf("Started:     %s\n", formatTimestamp(status.StartedAt))
			fmt.Printf("Heartbeat:   %s ago\n", formatAge(status.HeartbeatAt))
			fmt.Printf("Watch root:  %s\n", status.WatchRoot)
			fmt.Printf("Sessions:    %d indexed\n", status.SessionCount)
			fmt.Printf("Workers:     %d\n", status.MaxConcurrent)

			if len(status.QueueCounts) > 0 {
				t := newTable("status", "jobs")
				for state, count := range status.QueueCounts {
					t.AppendRow([]any{formatStatusLabel(state), count})
				}
				t.Render()
			}
			return nil
		},
	}
}
