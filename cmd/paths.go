package cmd

import (
	"github.com/jsdzhang/moltis/internal/config"
)

// resolveDataDir returns the directory used for gateway-managed state
// (pairing records, channel accounts, coordination files). It is always
// ~/.goclaw/data; cfg is not consulted.
func resolveDataDir(cfg *config.Config) string {
	return config.ExpandHome("~/.goclaw/data")
}
