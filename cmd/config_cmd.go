package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jsdzhang/moltis/internal/config"
)

// configCmd inspects and validates the config file without starting a gateway.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configValidateCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved config as JSON (secrets redacted)",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintln(os.Stderr, "load config:", err)
				os.Exit(1)
			}
			redactSecrets(cfg)
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				fmt.Fprintln(os.Stderr, "marshal config:", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the config file and report errors",
		Run: func(cmd *cobra.Command, args []string) {
			path := resolveConfigPath()
			if _, err := config.Load(path); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				os.Exit(1)
			}
			fmt.Printf("%s: OK\n", path)
		},
	}
}

// redactSecrets blanks API keys and tokens before printing config to a terminal.
func redactSecrets(cfg *config.Config) {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	cfg.Providers.Anthropic.APIKey = mask(cfg.Providers.Anthropic.APIKey)
	cfg.Providers.OpenAI.APIKey = mask(cfg.Providers.OpenAI.APIKey)
	cfg.Providers.OpenRouter.APIKey = mask(cfg.Providers.OpenRouter.APIKey)
	cfg.Providers.Gemini.APIKey = mask(cfg.Providers.Gemini.APIKey)
	cfg.Providers.Groq.APIKey = mask(cfg.Providers.Groq.APIKey)
	cfg.Providers.DeepSeek.APIKey = mask(cfg.Providers.DeepSeek.APIKey)
	cfg.Providers.Mistral.APIKey = mask(cfg.Providers.Mistral.APIKey)
	cfg.Providers.XAI.APIKey = mask(cfg.Providers.XAI.APIKey)
	cfg.Gateway.Token = mask(cfg.Gateway.Token)
	cfg.Channels.Telegram.Token = mask(cfg.Channels.Telegram.Token)
	cfg.Channels.Discord.Token = mask(cfg.Channels.Discord.Token)
}
