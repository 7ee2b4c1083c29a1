package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jsdzhang/moltis/internal/access"
	"github.com/jsdzhang/moltis/internal/agent"
	"github.com/jsdzhang/moltis/internal/bootstrap"
	"github.com/jsdzhang/moltis/internal/bus"
	"github.com/jsdzhang/moltis/internal/channelrouter"
	"github.com/jsdzhang/moltis/internal/channels"
	"github.com/jsdzhang/moltis/internal/channels/discord"
	"github.com/jsdzhang/moltis/internal/channels/telegram"
	"github.com/jsdzhang/moltis/internal/channels/whatsapp"
	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/coordination"
	"github.com/jsdzhang/moltis/internal/gateway"
	gatewayhttp "github.com/jsdzhang/moltis/internal/http"
	mcpbridge "github.com/jsdzhang/moltis/internal/mcp"
	"github.com/jsdzhang/moltis/internal/methods"
	"github.com/jsdzhang/moltis/internal/netfilter"
	"github.com/jsdzhang/moltis/internal/providers"
	"github.com/jsdzhang/moltis/internal/sandbox"
	"github.com/jsdzhang/moltis/internal/sessions"
	"github.com/jsdzhang/moltis/internal/skills"
	"github.com/jsdzhang/moltis/internal/store"
	"github.com/jsdzhang/moltis/internal/store/file"
	"github.com/jsdzhang/moltis/internal/tools"
	"github.com/jsdzhang/moltis/internal/tracing"
)

// runGateway is the composition root for the persistent gateway process: it
// loads config, wires every subsystem, and blocks until interrupted.
func runGateway() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	_, cfgStatErr := os.Stat(cfgPath)
	configMissing := os.IsNotExist(cfgStatErr)
	if !cfg.HasAnyProvider() || configMissing {
		if canAutoOnboard() {
			if runAutoOnboard(cfgPath) {
				cfg, _ = config.Load(cfgPath)
			} else {
				os.Exit(1)
			}
		} else if _, statErr := os.Stat(cfgPath); statErr == nil {
			envPath := filepath.Join(filepath.Dir(cfgPath), ".env.local")
			fmt.Println("No AI provider API key found. Did you forget to load your secrets?")
			fmt.Println()
			fmt.Printf("  source %s && ./moltis\n", envPath)
			fmt.Println()
			fmt.Println("Or re-run the setup wizard:  ./moltis onboard")
			os.Exit(1)
		} else {
			fmt.Println("No configuration found. Run 'moltis onboard' to set up providers and a gateway token.")
			return
		}
	}
	cfg.ApplyEnvOverrides()

	dataDir := resolveDataDir(cfg)
	os.MkdirAll(dataDir, 0o755)

	ctxRun, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx := ctxRun

	msgBus := bus.New()

	providerRegistry := providers.NewRegistry()
	registerProviders(providerRegistry, cfg)

	workspace := config.ExpandHome(cfg.Agents.Defaults.Workspace)
	if !filepath.IsAbs(workspace) {
		workspace, _ = filepath.Abs(workspace)
	}
	os.MkdirAll(workspace, 0o755)

	if seededFiles, seedErr := bootstrap.EnsureWorkspaceFiles(workspace); seedErr != nil {
		slog.Warn("bootstrap template seeding failed", "error", seedErr)
	} else if len(seededFiles) > 0 {
		slog.Info("seeded workspace templates", "files", seededFiles)
	}

	sessStore := file.NewFileSessionStore(sessions.NewManager(config.ExpandHome(cfg.Sessions.Storage)))
	pairingStore := store.NewFilePairingStore(filepath.Join(dataDir, "pairing.json"))
	builtinTools := file.NewBuiltinToolStore(filepath.Join(dataDir, "builtin_tools.json"))

	seedBuiltinTools(ctx, builtinTools)

	traceCollector := tracing.NewCollector(verbose)
	if err := traceCollector.Start(); err != nil {
		slog.Warn("trace collector failed to start", "error", err)
	}
	defer traceCollector.Stop()

	otpMgr := access.NewOTPManager()

	netfilterMgr := netfilter.NewManager(netfilter.Config{
		RequireApprovalForUnknown: true,
	})
	auditBuffer, err := netfilter.NewAuditBuffer(500, filepath.Join(dataDir, "netfilter-audit.jsonl"))
	if err != nil {
		slog.Warn("netfilter audit buffer disabled", "error", err)
	}

	sandboxMgr, err := sandbox.NewManager(cfg.Agents.Defaults.Sandbox.ToSandboxConfig())
	if err != nil {
		slog.Warn("sandbox manager disabled", "error", err)
		sandboxMgr, _ = sandbox.NewManager(sandbox.Config{Mode: sandbox.ModeOff})
	}
	defer sandboxMgr.Close(ctx)

	taskList, err := coordination.Open(filepath.Join(dataDir, "tasks.json"))
	if err != nil {
		slog.Warn("coordination task list unavailable", "error", err)
	}
	messageLog := coordination.NewMessageLog()

	channelMgr := channels.NewManager(msgBus)

	// Tool registry shared by every agent in this gateway.
	toolsReg := tools.NewRegistry()
	registerCoreTools(toolsReg, workspace, cfg)

	if len(cfg.Tools.McpServers) > 0 {
		mcpMgr := mcpbridge.NewManager(toolsReg, mcpbridge.WithConfigs(cfg.Tools.McpServers))
		if err := mcpMgr.Start(ctx); err != nil {
			slog.Warn("mcp startup errors", "error", err)
		}
		defer mcpMgr.Stop()
		slog.Info("mcp servers initialized", "configured", len(cfg.Tools.McpServers))
	}

	execApprovalMgr := buildExecApprovalManager(cfg, toolsReg)

	skillsLoader := skills.NewLoader(workspace, filepath.Join(config.ExpandHome("~/.goclaw"), "skills"), "")
	toolsReg.Register(tools.NewSkillSearchTool(skillsLoader))

	if cfg.Tools.RateLimitPerHour > 0 {
		toolsReg.SetRateLimiter(tools.NewToolRateLimiter(cfg.Tools.RateLimitPerHour))
	}

	applyBuiltinToolDisables(ctx, builtinTools, toolsReg)

	agentRouter := agent.NewRouter()
	buildAgents(agentRouter, cfg, providerRegistry, sessStore, toolsReg, msgBus, skillsLoader, workspace, traceCollector)

	subagentMgr := tools.NewSubagentManager(
		mustDefaultProvider(providerRegistry, cfg),
		cfg.Agents.Defaults.Model,
		msgBus,
		func() *tools.Registry { return toolsReg },
		subagentConfigFrom(cfg),
	)
	toolsReg.Register(tools.NewSpawnTool(subagentMgr))
	toolsReg.Register(tools.NewSubagentTool(subagentMgr))

	limiter := newRunLimiter()

	accountsPath := filepath.Join(dataDir, "accounts.json")
	accountStore := channelrouter.NewFileAccountStore(accountsPath)
	channelRouter, err := channelrouter.NewRouter(accountStore)
	if err != nil {
		slog.Warn("channel router unavailable", "error", err)
	}
	var channelAccts *channelrouter.Manager
	if channelRouter != nil {
		channelAccts = channelrouter.NewManager(channelRouter, accountStore)
	}

	server := gateway.NewServer(cfg, msgBus)
	methods.RegisterAll(server.Dispatcher(), methods.Deps{
		Config:          cfg,
		Sessions:        sessStore,
		Pairing:         pairingStore,
		OTP:             otpMgr,
		AgentRouter:     agentRouter,
		ChannelManager:  channelMgr,
		ChannelRouter:   channelRouter,
		ChannelAccts:    channelAccts,
		ExecApprovals:   execApprovalMgr,
		DomainApprovals: netfilterMgr,
		Audit:           auditBuffer,
		Sandbox:         sandboxMgr,
		Tasks:           taskList,
		Spawner:         coordination.NewSpawner(subagentRunFunc(agentRouter, limiter)),
		Messages:        messageLog,
	})

	builtinToolsHTTP := gatewayhttp.NewBuiltinToolsHandler(builtinTools, cfg.Gateway.Token, msgBus)
	builtinToolsHTTP.RegisterRoutes(server.BuildMux())

	startConfiguredChannels(ctx, channelAccts, cfg, channelMgr, msgBus, pairingStore, otpMgr)

	go consumeInboundMessages(ctxRun, msgBus, agentRouter, cfg, limiter, channelMgr)

	if err := server.Start(ctxRun); err != nil {
		slog.Error("gateway server error", "error", err)
	}

	if err := channelMgr.StopAll(context.Background()); err != nil {
		slog.Warn("error stopping channels", "error", err)
	}
}

// registerCoreTools wires the tool set every agent shares: filesystem, exec,
// web, vision/image-gen fallback, and session introspection tools.
func registerCoreTools(toolsReg *tools.Registry, workspace string, cfg *config.Config) {
	agentCfg := cfg.ResolveAgent(config.DefaultAgentID)

	toolsReg.Register(tools.NewReadFileTool(workspace, agentCfg.RestrictToWorkspace))
	toolsReg.Register(tools.NewWriteFileTool(workspace, agentCfg.RestrictToWorkspace))
	toolsReg.Register(tools.NewListFilesTool(workspace, agentCfg.RestrictToWorkspace))
	toolsReg.Register(tools.NewExecTool(workspace, agentCfg.RestrictToWorkspace))

	if webSearchTool := tools.NewWebSearchTool(tools.WebSearchConfig{
		BraveEnabled: cfg.Tools.Web.Brave.Enabled,
		BraveAPIKey:  cfg.Tools.Web.Brave.APIKey,
		DDGEnabled:   cfg.Tools.Web.DuckDuckGo.Enabled,
	}); webSearchTool != nil {
		toolsReg.Register(webSearchTool)
	}
	toolsReg.Register(tools.NewWebFetchTool(tools.WebFetchConfig{}))

	toolsReg.Register(tools.NewSessionsListTool())
	toolsReg.Register(tools.NewSessionStatusTool())
	toolsReg.Register(tools.NewSessionsHistoryTool())
	toolsReg.Register(tools.NewSessionsSendTool())

	if cfg.Tools.ScrubCredentials != nil && !*cfg.Tools.ScrubCredentials {
		toolsReg.SetScrubbing(false)
	}
}

func buildExecApprovalManager(cfg *config.Config, toolsReg *tools.Registry) *tools.ExecApprovalManager {
	approvalCfg := tools.DefaultExecApprovalConfig()
	if eaCfg := cfg.Tools.ExecApproval; eaCfg.Security != "" {
		approvalCfg.Security = tools.ExecSecurity(eaCfg.Security)
	}
	if eaCfg := cfg.Tools.ExecApproval; eaCfg.Ask != "" {
		approvalCfg.Ask = tools.ExecAskMode(eaCfg.Ask)
	}
	if len(cfg.Tools.ExecApproval.Allowlist) > 0 {
		approvalCfg.Allowlist = cfg.Tools.ExecApproval.Allowlist
	}
	mgr := tools.NewExecApprovalManager(approvalCfg)

	if execTool, ok := toolsReg.Get("exec"); ok {
		if aa, ok := execTool.(tools.ApprovalAware); ok {
			aa.SetApprovalManager(mgr, config.DefaultAgentID)
		}
	}
	return mgr
}

// buildAgents constructs one *agent.Loop per configured agent (at least the
// default) and registers each with agentRouter.
func buildAgents(
	agentRouter *agent.Router,
	cfg *config.Config,
	providerRegistry *providers.Registry,
	sessStore store.SessionStore,
	toolsReg *tools.Registry,
	msgBus *bus.MessageBus,
	skillsLoader *skills.Loader,
	workspace string,
	traceCollector *tracing.Collector,
) {
	agentIDs := map[string]bool{config.DefaultAgentID: true}
	for id := range cfg.Agents.List {
		agentIDs[config.NormalizeAgentID(id)] = true
	}

	for id := range agentIDs {
		agentCfg := cfg.ResolveAgent(id)

		provider, err := providerRegistry.Get(agentCfg.Provider)
		if err != nil {
			names := providerRegistry.List()
			if len(names) == 0 {
				slog.Error("no providers configured; run 'moltis onboard' first")
				os.Exit(1)
			}
			provider, _ = providerRegistry.Get(names[0])
			slog.Warn("configured provider not found, using fallback", "agent", id, "wanted", agentCfg.Provider, "using", names[0])
		}

		agentWorkspace := workspace
		if agentCfg.Workspace != "" {
			agentWorkspace = config.ExpandHome(agentCfg.Workspace)
			if !filepath.IsAbs(agentWorkspace) {
				agentWorkspace, _ = filepath.Abs(agentWorkspace)
			}
			os.MkdirAll(agentWorkspace, 0o755)
		}

		rawFiles := bootstrap.LoadWorkspaceFiles(agentWorkspace)
		truncCfg := bootstrap.TruncateConfig{
			MaxCharsPerFile: agentCfg.BootstrapMaxChars,
			TotalMaxChars:   agentCfg.BootstrapTotalMaxChars,
		}
		if truncCfg.MaxCharsPerFile <= 0 {
			truncCfg.MaxCharsPerFile = bootstrap.DefaultMaxCharsPerFile
		}
		if truncCfg.TotalMaxChars <= 0 {
			truncCfg.TotalMaxChars = bootstrap.DefaultTotalMaxChars
		}
		contextFiles := bootstrap.BuildContextFiles(rawFiles, truncCfg)

		var skillAllowList []string
		if spec, ok := cfg.Agents.List[id]; ok {
			skillAllowList = spec.Skills
		}

		loop := agent.NewLoop(agent.LoopConfig{
			ID:                id,
			Provider:          provider,
			Model:             agentCfg.Model,
			ContextWindow:     agentCfg.ContextWindow,
			MaxIterations:     agentCfg.MaxToolIterations,
			Workspace:         agentWorkspace,
			Bus:               msgBus,
			Sessions:          sessStore,
			Tools:             toolsReg,
			OwnerIDs:          cfg.Gateway.OwnerIDs,
			SkillsLoader:      skillsLoader,
			SkillAllowList:    skillAllowList,
			HasMemory:         false,
			ContextFiles:      contextFiles,
			CompactionCfg:     agentCfg.Compaction,
			ContextPruningCfg: agentCfg.ContextPruning,
			TraceCollector:    traceCollector,
			InjectionAction:   cfg.Gateway.InjectionAction,
			MaxMessageChars:   cfg.Gateway.MaxMessageChars,
		})
		agentRouter.Register(id, loop)
		slog.Info("agent registered", "id", id, "provider", agentCfg.Provider, "model", agentCfg.Model)
	}
}

func mustDefaultProvider(reg *providers.Registry, cfg *config.Config) providers.Provider {
	p, err := reg.Get(cfg.ResolveAgent(config.DefaultAgentID).Provider)
	if err == nil {
		return p
	}
	names := reg.List()
	if len(names) == 0 {
		return nil
	}
	p, _ = reg.Get(names[0])
	return p
}

func subagentConfigFrom(cfg *config.Config) tools.SubagentConfig {
	sc := cfg.Agents.Defaults.Subagents
	out := tools.SubagentConfig{
		MaxConcurrent:       8,
		MaxSpawnDepth:       1,
		MaxChildrenPerAgent: 5,
		ArchiveAfterMinutes: 60,
	}
	if sc == nil {
		return out
	}
	if sc.MaxConcurrent > 0 {
		out.MaxConcurrent = sc.MaxConcurrent
	}
	if sc.MaxSpawnDepth > 0 {
		out.MaxSpawnDepth = sc.MaxSpawnDepth
	}
	if sc.MaxChildrenPerAgent > 0 {
		out.MaxChildrenPerAgent = sc.MaxChildrenPerAgent
	}
	if sc.ArchiveAfterMinutes > 0 {
		out.ArchiveAfterMinutes = sc.ArchiveAfterMinutes
	}
	out.Model = sc.Model
	return out
}

// subagentRunFunc adapts the direct-dispatch run path to coordination.RunFunc
// so cross-session spawns (coordination.Spawner) share the same concurrency
// gate and router as channel-driven runs.
func subagentRunFunc(agentRouter *agent.Router, limiter *runLimiter) coordination.RunFunc {
	return func(ctx context.Context, req coordination.SpawnRequest) (string, error) {
		agentID := config.DefaultAgentID
		outCh := runAsync(ctx, agentRouter, limiter, agentID, req.ParentSessionID, 1, agent.RunRequest{
			SessionKey: req.ParentSessionID,
			Message:    req.Task,
			Channel:    "system",
			ChatID:     req.ParentSessionID,
			PeerKind:   "direct",
			RunID:      fmt.Sprintf("spawner-%s", req.ParentSessionID),
		})
		outcome := <-outCh
		if outcome.Err != nil {
			return "", outcome.Err
		}
		return outcome.Result.Content, nil
	}
}

// startConfiguredChannels registers the statically-enabled channels from
// config.json directly, and loads any additionally account-routed channel
// instances from accounts.json via channelrouter.
func startConfiguredChannels(ctx context.Context, accountMgr *channelrouter.Manager, cfg *config.Config, channelMgr *channels.Manager, msgBus *bus.MessageBus, pairingStore store.PairingStore, otpMgr *access.OTPManager) {
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		if ch, err := telegram.New(cfg.Channels.Telegram, msgBus, pairingStore, otpMgr); err != nil {
			slog.Error("telegram channel init failed", "error", err)
		} else {
			channelMgr.RegisterChannel("telegram", ch)
		}
	}
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		if ch, err := discord.New(cfg.Channels.Discord, msgBus, pairingStore, otpMgr); err != nil {
			slog.Error("discord channel init failed", "error", err)
		} else {
			channelMgr.RegisterChannel("discord", ch)
		}
	}
	if cfg.Channels.WhatsApp.Enabled && cfg.Channels.WhatsApp.BridgeURL != "" {
		if ch, err := whatsapp.New(cfg.Channels.WhatsApp, msgBus, pairingStore, otpMgr); err != nil {
			slog.Error("whatsapp channel init failed", "error", err)
		} else {
			channelMgr.RegisterChannel("whatsapp", ch)
		}
	}

	if accountMgr != nil {
		loader := channels.NewInstanceLoader(accountMgr, channelMgr, msgBus, pairingStore, otpMgr)
		loader.RegisterFactory("telegram", telegram.Factory)
		loader.RegisterFactory("discord", discord.Factory)
		loader.RegisterFactory("whatsapp", whatsapp.Factory)
		if err := loader.LoadAll(ctx); err != nil {
			slog.Warn("failed to load routed channel accounts", "error", err)
		}
	}

	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Warn("error starting channels", "error", err)
	}
}
