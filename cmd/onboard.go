package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jsdzhang/moltis/internal/config"
)

// providerInfo carries the auto-detection metadata for one provider: which
// environment variable holds its API key, and which model to default to
// when the user hasn't set one explicitly.
type providerInfo struct {
	envKey    string
	modelHint string
}

// providerMap drives auto-detection in runAutoOnboard/detectProvider:
// env vars are checked in providerPriority order, first match wins.
var providerMap = map[string]providerInfo{
	"openrouter": {envKey: "GOCLAW_OPENROUTER_API_KEY", modelHint: "anthropic/claude-sonnet-4-5-20250929"},
	"anthropic":  {envKey: "GOCLAW_ANTHROPIC_API_KEY", modelHint: "claude-sonnet-4-5-20250929"},
	"openai":     {envKey: "GOCLAW_OPENAI_API_KEY", modelHint: "gpt-4o"},
	"groq":       {envKey: "GOCLAW_GROQ_API_KEY", modelHint: "llama-3.3-70b-versatile"},
	"deepseek":   {envKey: "GOCLAW_DEEPSEEK_API_KEY", modelHint: "deepseek-chat"},
	"gemini":     {envKey: "GOCLAW_GEMINI_API_KEY", modelHint: "gemini-2.0-flash"},
	"mistral":    {envKey: "GOCLAW_MISTRAL_API_KEY", modelHint: "mistral-large-latest"},
	"xai":        {envKey: "GOCLAW_XAI_API_KEY", modelHint: "grok-2-latest"},
	"minimax":    {envKey: "GOCLAW_MINIMAX_API_KEY", modelHint: "MiniMax-Text-01"},
	"cohere":     {envKey: "GOCLAW_COHERE_API_KEY", modelHint: "command-r-plus"},
	"perplexity": {envKey: "GOCLAW_PERPLEXITY_API_KEY", modelHint: "llama-3.1-sonar-large-128k-online"},
}

// onboardGenerateToken returns a random hex string of n bytes, used for the
// gateway bearer token and any other secret this binary generates on first run.
func onboardGenerateToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Configure providers, workspace, and gateway token for first run",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath := resolveConfigPath()

			if canAutoOnboard() {
				if !runAutoOnboard(cfgPath) {
					fmt.Println("Onboard failed; see errors above.")
				}
				return
			}

			fmt.Println("No provider API key found in the environment.")
			fmt.Println("Set one of the following and re-run 'moltis onboard':")
			for _, name := range providerPriority {
				fmt.Printf("  %-20s %s\n", name, providerMap[name].envKey)
			}

			cfg := config.Default()
			if cfg.Gateway.Token == "" {
				cfg.Gateway.Token = onboardGenerateToken(16)
			}
			if err := saveCleanConfig(cfgPath, cfg); err != nil {
				fmt.Printf("Warning: could not write starter config: %v\n", err)
				return
			}
			fmt.Printf("Wrote a starter config to %s — fill in a provider API key and run again.\n", cfgPath)
		},
	}
}
