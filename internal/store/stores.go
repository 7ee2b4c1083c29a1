package store

// Stores is the top-level container for all storage backends used by the
// standalone gateway. The managed-mode, multi-tenant stores that the wider
// teacher tree once referenced (per-account agents/providers/teams/tracing)
// have no place in a personal, single-operator deployment and are dropped;
// see DESIGN.md for the full list and rationale.
type Stores struct {
	Sessions     SessionStore
	Pairing      PairingStore
	MCP          MCPServerStore // nil if no MCP servers configured
	BuiltinTools BuiltinToolStore
}
