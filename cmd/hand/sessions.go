package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheBushidoCollective/han-sub006/internal/ipc"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List indexed sessions",
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

			reply, err := conn.SessionList()
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			if len(reply.Sessions) == 0 {
				fmt.Println("No sessions indexed.")
				return nil
			}

			t := newTable("session", "project", "messages", "last activity")
			for _, session := range reply.Sessions {
				project := session.ProjectPath
				if project == "" {
					project = session.ProjectSlug
				}
				t.AppendRow([]any{
					session.ID,
					truncatePath(project, 40),
					session.MessageCount,
					formatAge(session.LastActivityAt) + " ago",
				})
			}
			t.Render()
			return nil
		},
	}
}
