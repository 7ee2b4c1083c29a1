package cmd

import (
	"github.com/spf13/cobra"
)

// agentCmd groups agent-facing subcommands (currently just chat) under
// "moltis agent ...".
func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Interact with a configured agent",
	}
	cmd.AddCommand(agentChatCmd())
	return cmd
}
