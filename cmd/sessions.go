package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/sessions"
)

// sessionsCmd inspects the file-backed session store directly, without a
// running gateway.
func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored agent sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsShowCmd())
	return cmd
}

func openSessionsManager() (*sessions.Manager, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return sessions.NewManager(config.ExpandHome(cfg.Sessions.Storage)), nil
}

func sessionsListCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, optionally filtered by agent",
		Run: func(cmd *cobra.Command, args []string) {
			mgr, err := openSessionsManager()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			items := mgr.List(agentID)
			if len(items) == 0 {
				fmt.Println("No sessions on file.")
				return
			}
			for _, s := range items {
				fmt.Printf("%-40s messages=%-5d updated=%s\n", s.Key, s.MessageCount, s.Updated.Format("2006-01-02 15:04"))
			}
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "filter by agent ID")
	return cmd
}

func sessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Print a session's message history",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			mgr, err := openSessionsManager()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			history := mgr.GetHistory(args[0])
			if len(history) == 0 {
				fmt.Println("No such session, or it has no messages yet.")
				return
			}
			for _, m := range history {
				fmt.Printf("[%s] %s\n", m.Role, m.Content)
			}
		},
	}
}
