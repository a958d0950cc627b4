package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheBushidoCollective/han-sub006/internal/ipc"
)

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List hook jobs tracked by the coordinator",
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

			reply, err := conn.QueueList()
			if err != nil {
				return fmt.Errorf("list queue: %w", err)
			}
			if len(reply.Jobs) == 0 {
				fmt.Println("Queue is empty.")
				return nil
			}

			t := newTable("hook id", "session", "status", "enqueued", "files")
			for _, job := range reply.Jobs {
				t.AppendRow([]any{
					job.HookID,
					job.SessionID,
					formatStatusLabel(job.Status),
					formatAge(job.EnqueuedAt) + " ago",
					len(job.Files),
				})
			}
			t.Render()
			return nil
		},
	}
}
