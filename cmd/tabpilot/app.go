package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/tabpilot/internal/agent"
	"github.com/rahul/tabpilot/internal/gateway"
	"github.com/rahul/tabpilot/internal/governance"
	"github.com/rahul/tabpilot/internal/host"
	"github.com/rahul/tabpilot/internal/llm"
	"github.com/rahul/tabpilot/internal/observability"
	"github.com/rahul/tabpilot/internal/orchestrator"
	"github.com/rahul/tabpilot/internal/store"
	"github.com/rahul/tabpilot/internal/tools"
	"github.com/rahul/tabpilot/pkg/config"
)

// denyScriptURLs keeps the model away from script and local-file URLs.
const denyScriptURLs = `(?i)"url"\s*:\s*"\s*(javascript|file):`

// app holds everything a command needs.
type app struct {
	cfg     *config.Config
	logger  *observability.Logger
	browser *host.ChromeListener
	history *store.ConversationStore
	conv    *gateway.Conversation
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		log.Printf("Config %s not found, using defaults", path)
		return config.Default(), nil
	}
	return nil, err
}

func newModel(cfg *config.Config) (llms.Model, error) {
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		if key := os.Getenv(config.APIKeyEnv); key != "" {
			pName, pCfg = "openai", config.ProviderConfig{APIKey: key, Enabled: true}
		} else {
			return nil, errors.New("no enabled provider found in config")
		}
	}

	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{openai.WithToken(pCfg.APIKey)}
		if pCfg.Model != "" {
			opts = append(opts, openai.WithModel(pCfg.Model))
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s not yet implemented", pName)
	}
}

// newRegistry registers every tool. Tools that talk to the browser share
// one bridge.
func newRegistry(bridge tools.Host) *tools.Registry {
	registry := tools.NewRegistry()

	searcher, err := tools.NewDuckDuckGo()
	if err != nil {
		log.Printf("Warning: Failed to initialize search tool: %v", err)
	} else {
		registry.Register(tools.NewSearchTool(searcher))
		registry.Register(tools.NewVideoSearchTool(searcher))
	}

	registry.Register(tools.NewListTabsTool(bridge))
	registry.Register(tools.NewSearchTabsTool(bridge))
	registry.Register(tools.NewReadPageTool(bridge))
	registry.Register(tools.NewOpenTabTool(bridge))
	registry.Register(tools.NewCloseTabTool(bridge))
	registry.Register(tools.NewActivateTabTool(bridge))
	registry.Register(tools.NewGroupTabsTool(bridge))
	registry.Register(tools.NewClickElementTool(bridge))
	registry.Register(tools.NewTypeTextTool(bridge))
	registry.Register(tools.NewSeekVideoTool(bridge))
	return registry
}

// newPolicy restricts to the registry's read-only tools and adds argument
// deny rules that hold in every mode.
func newPolicy(registry *tools.Registry, denyPatterns ...string) (*governance.DefaultPolicyEngine, error) {
	policy := tools.RestrictedPolicy(registry)
	for _, pattern := range denyPatterns {
		if err := policy.DenyArguments(pattern); err != nil {
			return nil, fmt.Errorf("invalid deny rule %q: %w", pattern, err)
		}
	}
	return policy, nil
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.mode != "" {
		cfg.App.Mode = flags.mode
	}
	mode := governance.ParseMode(cfg.App.Mode)

	model, err := newModel(cfg)
	if err != nil {
		return nil, err
	}
	client := llm.NewLangChainClient(model)
	logger := observability.NewLogger()

	browser := host.NewChromeListener(flags.headless || cfg.Browser.Headless)
	bridge := host.NewBridge(browser, host.WithTimeout(cfg.HostTimeout()))

	registry := newRegistry(bridge)
	policy, err := newPolicy(registry, denyScriptURLs)
	if err != nil {
		browser.Close()
		return nil, err
	}
	dispatcher := tools.NewDispatcher(registry, policy, logger)

	prompts := agent.NewPromptManager(cfg.Agent.PromptsDir)
	lo, hi := cfg.RestreamDelay()
	orch := orchestrator.New(
		agent.NewPlanner(client, registry, prompts, logger),
		agent.NewExecutor(client, registry, prompts, logger),
		agent.NewValidator(client, prompts, logger, agent.WithRestreamDelay(lo, hi)),
		dispatcher,
		orchestrator.WithIndicator(bridge),
		orchestrator.WithMode(mode),
		orchestrator.WithMaxIterations(cfg.App.MaxIterations),
		orchestrator.WithLogger(logger),
	)
	responder := agent.NewResponder(client, dispatcher, prompts, logger)

	history, err := store.NewConversationStore(cfg.Memory.Path)
	if err != nil {
		browser.Close()
		return nil, err
	}

	log.Printf("[ OK ] %s ready (mode %s, %d tools)", cfg.App.Name, mode, len(registry.Names()))
	return &app{
		cfg:     cfg,
		logger:  logger,
		browser: browser,
		history: history,
		conv:    gateway.NewConversation(orch, responder, history),
	}, nil
}

// messengers builds the enabled chat gateways.
func (a *app) messengers() ([]gateway.Messenger, error) {
	var out []gateway.Messenger
	if gw, ok := a.cfg.GetGatewayConfig("telegram"); ok {
		tg, err := gateway.NewTelegramGateway(gw.Token, a.conv)
		if err != nil {
			return nil, fmt.Errorf("telegram gateway: %w", err)
		}
		out = append(out, tg)
	}
	if gw, ok := a.cfg.GetGatewayConfig("discord"); ok {
		dg, err := gateway.NewDiscordGateway(gw.Token, a.conv)
		if err != nil {
			return nil, fmt.Errorf("discord gateway: %w", err)
		}
		out = append(out, dg)
	}
	return out, nil
}

func (a *app) Close() {
	if err := a.history.Close(); err != nil {
		log.Printf("[store] close failed: %v", err)
	}
	if err := a.browser.Close(); err != nil {
		log.Printf("[host] close failed: %v", err)
	}
}
