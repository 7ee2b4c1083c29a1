package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/skills"
)

// skillsCmd lists the skills a future gateway run would load, across the
// workspace/global/extra roots.
func skillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List discoverable skills",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintln(os.Stderr, "load config:", err)
				os.Exit(1)
			}
			workspace := config.ExpandHome(cfg.Agents.Defaults.Workspace)
			globalDir := filepath.Join(config.ExpandHome("~/.goclaw"), "skills")
			loader := skills.NewLoader(filepath.Join(workspace, "skills"), globalDir, "")

			all := loader.ListSkills()
			if len(all) == 0 {
				fmt.Println("No skills found.")
				return
			}
			for _, sk := range all {
				fmt.Printf("%-24s [%s] %s\n", sk.Name, sk.Source, sk.Description)
			}
		},
	}
}
