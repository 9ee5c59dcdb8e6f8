package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"relay-ai/internal/adapter/a2a"
	"relay-ai/internal/adapter/gateway"
	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
	"relay-ai/internal/infra/logger"
	"relay-ai/internal/infra/tracer"
	"relay-ai/internal/usecase"
	"relay-ai/internal/usecase/eventbus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("setup tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	bus := eventbus.New(log)
	defer bus.Close()

	discovery := a2a.NewDiscovery(cfg.Discovery, log)
	registry := usecase.NewRegistry(discovery, log,
		usecase.WithRefreshInterval(cfg.Discovery.RefreshIntervalDuration()),
		usecase.WithDiscoveryTimeout(cfg.Discovery.TimeoutDuration()),
		usecase.WithExtraKeywords(cfg.Routing.Keywords),
		usecase.WithRegistryBus(bus),
	)
	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("start registry: %w", err)
	}
	defer registry.Stop()

	sessions := usecase.NewSessionStore(bus, log)
	if cfg.Sessions.ReapEnabled {
		reaper := cron.New()
		_, err := reaper.AddFunc(fmt.Sprintf("@every %s", cfg.Sessions.ReapIntervalDuration()), func() {
			sessions.ReapStale(cfg.Sessions.MaxIdleDuration())
		})
		if err != nil {
			return fmt.Errorf("schedule session reaper: %w", err)
		}
		reaper.Start()
		defer func() { <-reaper.Stop().Done() }()
	}

	defaultAgent, err := domain.ParseAgentRef(cfg.Routing.DefaultAgent)
	if err != nil {
		return fmt.Errorf("routing.default_agent: %w", err)
	}
	router := usecase.NewKeywordRouter(registry, sessions, defaultAgent, log)

	var invoker domain.Invoker = a2a.NewClient(cfg.Invoke, log)
	invoker = a2a.NewBreakerInvoker(invoker, cfg.Invoke.Breaker, log)

	orchestrator := usecase.NewOrchestrator(router, sessions, invoker, bus, log)

	if !cfg.Gateway.Enabled {
		log.Info("gateway disabled, running headless")
		<-ctx.Done()
		return nil
	}

	auth := gateway.NewStaticTokenAuth(cfg.Gateway.Tokens)
	srv := gateway.NewServer(bus, auth, cfg.Gateway, log)
	deps := gateway.HandlerDeps{
		Handler:  orchestrator,
		Sessions: sessions,
		Registry: registry,
		Logger:   log,
	}
	gateway.RegisterRPCHandlers(srv, deps)
	gateway.RegisterRESTHandlers(srv, deps, bus)

	log.Info("relay starting", "gateway_addr", cfg.Gateway.Addr)
	return srv.Start(ctx)
}

// loadConfig falls back to defaults when the default config file is
// absent; an explicitly named file must exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == "config.yaml" {
		return config.Default(), nil
	}
	return config.Load(path)
}
