package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jsdzhang/moltis/internal/channelrouter"
	"github.com/jsdzhang/moltis/internal/config"
)

// channelsCmd lists configured channels: the statically-enabled ones in
// config.json plus any per-account routing entries in accounts.json.
func channelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List configured channels and routed accounts",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintln(os.Stderr, "load config:", err)
				os.Exit(1)
			}

			fmt.Println("Channels:")
			printChannel("telegram", cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.Token != "")
			printChannel("discord", cfg.Channels.Discord.Enabled, cfg.Channels.Discord.Token != "")
			printChannel("msteams", cfg.Channels.MSTeams.Enabled, cfg.Channels.MSTeams.AppID != "")
			printChannel("whatsapp", cfg.Channels.WhatsApp.Enabled, cfg.Channels.WhatsApp.BridgeURL != "")

			accountsPath := filepath.Join(resolveDataDir(cfg), "accounts.json")
			accountStore := channelrouter.NewFileAccountStore(accountsPath)
			accounts, err := accountStore.List()
			if err != nil {
				fmt.Fprintln(os.Stderr, "list accounts:", err)
				return
			}
			if len(accounts) == 0 {
				return
			}
			fmt.Println()
			fmt.Println("Routed accounts:")
			for _, a := range accounts {
				state := "enabled"
				if !a.Enabled {
					state = "disabled"
				}
				fmt.Printf("  %-10s account=%-20s agent=%-16s %s\n", a.ChannelType, a.AccountID, a.AgentKey, state)
			}
		},
	}
}

func printChannel(name string, enabled, hasCredentials bool) {
	status := "disabled"
	if enabled && hasCredentials {
		status = "enabled"
	} else if enabled {
		status = "enabled (missing credentials)"
	}
	fmt.Printf("  %-10s %s\n", name+":", status)
}
