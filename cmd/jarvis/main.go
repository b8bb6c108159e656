package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/jarvis/internal/agent"
	"github.com/nidhogg/jarvis/internal/api"
	"github.com/nidhogg/jarvis/internal/classifier"
	"github.com/nidhogg/jarvis/internal/command"
	"github.com/nidhogg/jarvis/internal/config"
	"github.com/nidhogg/jarvis/internal/content"
	"github.com/nidhogg/jarvis/internal/events"
	"github.com/nidhogg/jarvis/internal/gateway"
	"github.com/nidhogg/jarvis/internal/generator"
	"github.com/nidhogg/jarvis/internal/memory"
	"github.com/nidhogg/jarvis/internal/metrics"
	"github.com/nidhogg/jarvis/internal/provider"
	msgrouter "github.com/nidhogg/jarvis/internal/router"
	pgstore "github.com/nidhogg/jarvis/internal/store"
	"github.com/nidhogg/jarvis/internal/sweeper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/jarvis.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Jarvis...", zap.String("config", cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("jarvis stopped with error", zap.Error(err))
	}
	logger.Info("Jarvis stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Content and classification
	catalog, err := loadCatalog(cfg.Agent.ContentPath)
	if err != nil {
		return err
	}
	cls, err := classifier.NewCached(classifier.New(catalog), cfg.Agent.ClassifierCacheSize)
	if err != nil {
		return err
	}
	logger.Info("Content loaded", zap.Int("topics", len(catalog.Topics())))

	// Providers and generators
	providers := newProviderRouter(cfg, logger)
	var gens []generator.Generator
	if providers.Len() > 0 {
		gens = append(gens, generator.NewRemote(providers, cfg.Agent.SystemPrompt, logger))
	}
	if !cfg.Agent.DisableLocal {
		gens = append(gens, generator.NewLocal(catalog, generator.WithRand(newRand(cfg.Agent.Seed))))
	}
	var gen generator.Generator
	if len(gens) > 0 {
		chain := generator.NewChain(gens...)
		logger.Info("Generators ready", zap.Strings("chain", chain.Members()))
		gen = chain
	} else {
		logger.Warn("No generators configured, answering from the knowledge base only")
	}

	pipeline := agent.NewPipeline(catalog, cls, logger,
		agent.WithGenerator(gen),
		agent.WithRand(newRand(cfg.Agent.Seed)),
		agent.WithThreshold(cfg.Agent.MinConfidence),
		agent.WithTimeout(cfg.Agent.GenerationTimeout.Std()),
	)

	// Observers: metrics always, event stream and archive when configured
	collector := metrics.NewCollector("jarvis", logger)
	regOpts := []agent.RegistryOption{agent.WithObserver(collector)}

	var bus *events.Bus
	if cfg.Database.Redis.URL != "" {
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		bus, err = events.NewBus(cctx, cfg.Database.Redis.URL, cfg.Database.Redis.Stream, logger)
		cancel()
		if err != nil {
			logger.Warn("Redis unavailable, running without event stream", zap.Error(err))
			bus = nil
		} else {
			defer bus.Close()
			regOpts = append(regOpts, agent.WithObserver(bus))
			logger.Info("Event stream ready", zap.String("stream", bus.Stream()))
		}
	}

	var archive *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		archive, err = pgstore.New(cctx, cfg.Database.Postgres.DSN, logger)
		if err == nil {
			err = archive.Migrate(cctx)
			if err != nil {
				archive.Close()
			}
		}
		cancel()
		if err != nil {
			logger.Warn("PostgreSQL unavailable, running without transcript archive", zap.Error(err))
			archive = nil
		} else {
			defer archive.Close()
			regOpts = append(regOpts, agent.WithObserver(archive))
		}
	}

	transcriptCap := cfg.Agent.TranscriptLimit()
	factory := func(sessionID string) *agent.Agent {
		return agent.New(sessionID, pipeline,
			agent.WithName(cfg.Agent.Name),
			agent.WithTranscriptCap(transcriptCap),
			agent.WithMemory(memory.NewStore(memory.WithCapacity(cfg.Agent.MemoryCapacity, cfg.Agent.MemoryCapacity/2))),
			agent.WithLogger(logger.With(zap.String("session", sessionID))),
		)
	}
	sessions := agent.NewRegistry(factory, logger, regOpts...)

	// Idle sweep
	sweep, err := sweeper.New(sessions, collector, cfg.Agent.SweepSchedule, cfg.Agent.SessionMaxIdle.Std(), logger)
	if err != nil {
		return err
	}
	if err := sweep.Start(); err != nil {
		return err
	}
	defer sweep.Stop()

	// Chat gateways
	gw := gateway.NewGateway(logger)
	defer gw.Close()

	commands := command.NewRegistry()
	command.RegisterBuiltins(commands, sessions, catalog, gw)

	msgRouter := msgrouter.New(sessions, gw, commands, cfg.Agent.GenerationTimeout.Std()*2, logger)
	gw.SetHandler(msgRouter.Handle)

	persona := &gateway.Persona{
		Name:    cfg.Gateway.Persona.Name,
		IconURL: cfg.Gateway.Persona.IconURL,
		Emoji:   cfg.Gateway.Persona.Emoji,
	}
	if cfg.Gateway.Slack.Enabled && cfg.Gateway.Slack.BotToken != "" {
		slackAdapter := gateway.NewSlackAdapter(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.AppToken, logger)
		slackAdapter.SetPersona(persona)
		gw.Register(slackAdapter)
	}
	if cfg.Gateway.Discord.Enabled && cfg.Gateway.Discord.BotToken != "" {
		discordAdapter := gateway.NewDiscordAdapter(cfg.Gateway.Discord.BotToken, logger)
		discordAdapter.SetPersona(persona)
		gw.Register(discordAdapter)
	}
	if err := gw.ConnectAll(ctx); err != nil {
		logger.Warn("some gateway adapters failed to connect", zap.Error(err))
	}

	// HTTP API
	apiOpts := []api.Option{
		api.WithProviders(providers),
		api.WithAdapters(gw),
		api.WithMetrics(collector),
		api.WithSessionMaxIdle(cfg.Agent.SessionMaxIdle.Std()),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithRateLimit(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst),
	}
	if archive != nil {
		apiOpts = append(apiOpts, api.WithArchive(archive))
	}
	if bus != nil {
		apiOpts = append(apiOpts, api.WithEvents(bus))
	}
	handler := api.NewHandler(sessions, catalog, logger, apiOpts...)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Jarvis listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down Jarvis...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func loadCatalog(path string) (*content.Catalog, error) {
	if path == "" {
		return content.Default()
	}
	return content.Load(path)
}

// newProviderRouter registers every provider that has credentials and
// applies the routing table.
func newProviderRouter(cfg *config.Config, logger *zap.Logger) *provider.Router {
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		if pc.APIKey == "" {
			logger.Info("provider has no API key, skipping", zap.String("id", pc.ID))
			continue
		}
		provCfg := provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Models: pc.Models, Extra: pc.Extra,
			Timeout: cfg.Agent.GenerationTimeout.Std(),
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}

	if id := cfg.Routing.Default; id != "" {
		if _, ok := router.GetProvider(id); ok {
			router.SetDefault(id)
		}
	}
	for purpose, id := range cfg.Routing.Bindings {
		router.Bind(purpose, id)
	}
	if len(cfg.Routing.Fallbacks) > 0 {
		router.SetFallbacks(provider.PurposeReply, cfg.Routing.Fallbacks)
		router.SetFallbacks(provider.PurposeCode, cfg.Routing.Fallbacks)
	}
	return router
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// newRand returns a seeded source; seed 0 seeds from the clock.
func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
