package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheBushidoCollective/han-sub006/internal/client"
	"github.com/TheBushidoCollective/han-sub006/internal/hooks"
	"github.com/TheBushidoCollective/han-sub006/internal/ipc"
	"github.com/TheBushidoCollective/han-sub006/internal/logging"
)

func newHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Run and inspect plugin hooks",
	}
	cmd.AddCommand(newHookRunCmd(), newHookClearCmd(), newHookAuditCmd())
	return cmd
}

func newHookRunCmd() *cobra.Command {
	var (
		plugin      string
		hook        string
		sessionID   string
		files       []string
		waitSeconds int
	)
	cmd := &cobra.Command{
		Use:   "run -- <command>",
		Short: "Dispatch a hook and wait for its result",
		Long: `Dispatches a hook through the coordinator queue and blocks for the
terminal result. When no coordinator is reachable the hook runs locally
and synchronously instead, so hooks always execute.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			spec := hooks.Spec{
				Plugin:    plugin,
				Hook:      hook,
				SessionID: sessionID,
				Command:   strings.Join(args, " "),
				Files:     files,
			}

			dispatcher := client.NewDispatcher(cfg, logging.NewNop())
			result, viaDaemon, err := dispatcher.Dispatch(
				cmd.Context(), spec, time.Duration(waitSeconds)*time.Second)
			if err != nil {
				return err
			}

			path := "local"
			if viaDaemon {
				path = "coordinator"
			}
			fmt.Printf("Hook:     %s (%s)\n", result.HookID, path)
			fmt.Printf("Status:   %s\n", formatStatusLabel(string(result.Status)))
			fmt.Printf("Exit:     %d\n", result.ExitCode)
			fmt.Printf("Duration: %s\n", result.Duration.Round(time.Millisecond))
			if result.Stdout != "" {
				fmt.Println(result.Stdout)
			}
			if result.Stderr != "" {
				fmt.Println(result.Stderr)
			}
			if !result.Success {
				return fmt.Errorf("hook failed: %s", result.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&plugin, "plugin", "", "plugin name (required)")
	cmd.Flags().StringVar(&hook, "hook", "", "hook event name (required)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session the hook belongs to")
	cmd.Flags().StringSliceVar(&files, "files", nil, "files the hook covers")
	cmd.Flags().IntVar(&waitSeconds, "wait", 0, "seconds to wait for the result (0 = configured default)")
	_ = cmd.MarkFlagRequired("plugin")
	_ = cmd.MarkFlagRequired("hook")
	return cmd
}

func newHookClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Cancel every live hook of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dispatcher := client.NewDispatcher(cfg, logging.NewNop())
			cancelled, err := dispatcher.ClearSession(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Cancelled %d hook(s).\n", cancelled)
			return nil
		},
	}
}

func newHookAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <hook-id>",
		Short: "Show the recorded lifecycle of a hook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			conn, err := ipc.DialTimeout(cfg.SocketPath(), cfg.ProbeTimeout())
			if err != nil {
				return fmt.Errorf("coordinator not running: %w", err)
			}
			defer conn.Close()

			reply, err := conn.Audit(args[0])
			if err != nil {
				return fmt.Errorf("fetch audit trail: %w", err)
			}
			if len(reply.Events) == 0 {
				fmt.Println("No audit events recorded.")
				return nil
			}

			t := newTable("time", "event", "detail")
			for _, event := range reply.Events {
				t.AppendRow([]any{
					formatTimestamp(event.CreatedAt),
					formatStatusLabel(event.Event),
					event.Detail,
				})
			}
			t.Render()
			return nil
		},
	}
}
