// Command wizard-server serves the wizard API, run history and live
// websocket sessions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/GoCodeAlone/workflow-wizard/ai"
	"github.com/GoCodeAlone/workflow-wizard/ai/llm"
	"github.com/GoCodeAlone/workflow-wizard/ai/persona"
	"github.com/GoCodeAlone/workflow-wizard/cache"
	"github.com/GoCodeAlone/workflow-wizard/config"
	"github.com/GoCodeAlone/workflow-wizard/metrics"
	"github.com/GoCodeAlone/workflow-wizard/middleware"
	"github.com/GoCodeAlone/workflow-wizard/observability/tracing"
	"github.com/GoCodeAlone/workflow-wizard/orchestrator"
	"github.com/GoCodeAlone/workflow-wizard/session"
	"github.com/GoCodeAlone/workflow-wizard/skeleton"
	"github.com/GoCodeAlone/workflow-wizard/store"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	configFile     = flag.String("config", "", "Path to the wizard configuration YAML file")
	addr           = flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	anthropicKey   = flag.String("anthropic-key", "", "Anthropic API key (or set ANTHROPIC_API_KEY env)")
	anthropicModel = flag.String("anthropic-model", "", "Anthropic model name")
)

func main() {
	flag.Parse()
	applyEnvOverrides()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "wizard-server: %v\n", err)
		os.Exit(1)
	}
}

// envOrFlag returns the environment variable value if set, otherwise the
// flag value.
func envOrFlag(envKey string, flagVal *string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if flagVal != nil {
		return *flagVal
	}
	return ""
}

// applyEnvOverrides fills flags that were not set on the command line from
// their environment variables.
func applyEnvOverrides() {
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	for name, env := range map[string]string{
		"config":          "WIZARD_CONFIG",
		"addr":            "WIZARD_ADDR",
		"anthropic-key":   "ANTHROPIC_API_KEY",
		"anthropic-model": "ANTHROPIC_MODEL",
	} {
		if explicit[name] {
			continue
		}
		f := flag.Lookup(name)
		if v := envOrFlag(env, nil); v != "" && f != nil {
			_ = f.Value.Set(v)
		}
	}
}

// loadConfig reads the configuration file, if any, and applies the flags.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *anthropicKey != "" {
		cfg.Generation.Anthropic.APIKey = *anthropicKey
	}
	if *anthropicModel != "" {
		cfg.Generation.Anthropic.Model = *anthropicModel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app holds the wired server components.
type app struct {
	handler  http.Handler
	service  *ai.Service
	sessions *session.Handler
	closers  []func(context.Context) error
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			slog.Default().Warn("shutdown step failed", "error", err)
		}
	}
}

func openStore(cfg config.StoreConfig) (store.RunStore, func(context.Context) error, error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		s, err := store.NewSQLiteRunStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case config.StoreMemory:
		return store.NewInMemoryRunStore(), nil, nil
	}
	return nil, nil, nil
}

// build wires every component described by cfg.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.close(context.WithoutCancel(ctx))
		return nil, err
	}

	tp, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return fail(fmt.Errorf("tracing: %w", err))
	}
	a.closers = append(a.closers, tp.Shutdown)
	tracer := tracing.NewWizardTracer(tp.Tracer())

	runs, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return fail(fmt.Errorf("run store: %w", err))
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	parseCache, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		return fail(fmt.Errorf("cache: %w", err))
	}
	if rc, ok := parseCache.(*cache.Redis); ok {
		a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
	}

	opts := []ai.ServiceOption{
		ai.WithLogger(logger),
		ai.WithPreferred(ai.Provider(cfg.Generation.Provider)),
		ai.WithTemplateFallback(cfg.Generation.TemplateFallback),
	}
	if parseCache != nil {
		opts = append(opts, ai.WithCache(parseCache, cfg.Cache.DefaultTTL))
	}
	if p := cfg.Intent.VocabularyPath; p != "" {
		v, err := config.VocabularyFile(p).Load()
		if err != nil {
			return fail(err)
		}
		opts = append(opts, ai.WithVocabulary(v))
	}
	if p := cfg.Intent.TemplatesPath; p != "" {
		t, err := skeleton.LoadTemplates(p)
		if err != nil {
			return fail(err)
		}
		opts = append(opts, ai.WithTemplates(t))
	}
	a.service = ai.NewService(persona.New(), opts...)

	if ac := cfg.Generation.Anthropic; ac.APIKey != "" {
		client, err := llm.NewClient(llm.ClientConfig{
			APIKey:    ac.APIKey,
			Model:     ac.Model,
			BaseURL:   ac.BaseURL,
			Timeout:   ac.Timeout,
			MaxTokens: ac.MaxTokens,
		})
		if err != nil {
			return fail(fmt.Errorf("anthropic: %w", err))
		}
		a.service.RegisterGenerator(ai.ProviderAnthropic, client)
		logger.Info("anthropic generator registered", "model", ac.Model)
	}

	if cfg.Intent.WatchVocabulary {
		w := config.NewVocabularyWatcher(config.VocabularyFile(cfg.Intent.VocabularyPath),
			func(ev config.VocabularyChangeEvent) { a.service.SetVocabulary(ev.Vocabulary) },
			config.WithWatchDebounce(cfg.Intent.WatchDebounce),
			config.WithWatchLogger(logger))
		if err := w.Start(); err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, func(context.Context) error { return w.Stop() })
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewWithConfig(cfg.Metrics)
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithBatchSize(cfg.Generation.BatchSize),
		orchestrator.WithRunStore(runs),
		orchestrator.WithTracer(tracer),
		orchestrator.WithLegacy(a.service),
	}
	if collector != nil {
		orchOpts = append(orchOpts, orchestrator.WithRecorder(collector))
	}
	if r := cfg.Generation.BatchRate; r > 0 {
		orchOpts = append(orchOpts, orchestrator.WithLimiter(rate.NewLimiter(rate.Limit(r), 1)))
	}

	mux := http.NewServeMux()
	handlerOpts := []ai.HandlerOption{ai.WithHandlerLogger(logger)}
	if runs != nil {
		handlerOpts = append(handlerOpts, ai.WithRunStore(runs))
	}
	ai.NewHandler(a.service, handlerOpts...).RegisterRoutes(mux)

	a.sessions = session.NewHandler(a.service, a.service,
		session.WithLogger(logger),
		session.WithOrchestratorOptions(orchOpts...))
	a.sessions.RegisterRoutes(mux)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	open := []string{"/healthz"}
	if collector != nil {
		mux.Handle("GET "+collector.Path(), collector.Handler())
		open = append(open, collector.Path())
	}

	var h http.Handler = mux
	if rl := cfg.Server.RateLimit; rl.RequestsPerSecond > 0 {
		limiter := middleware.NewRateLimiter(rl.RequestsPerSecond, rl.Burst)
		a.closers = append(a.closers, func(context.Context) error { limiter.Stop(); return nil })
		h = limiter.Middleware(h)
	}
	h = middleware.APIKeyAuth(cfg.Server.APIKey, open, h)
	if collector != nil {
		h = collector.Middleware(h)
	}
	a.handler = tracing.SpanMiddleware(h)
	return a, nil
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("wizard server listening", "addr", cfg.Server.Addr, "provider", cfg.Generation.Provider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		// Hijacked websocket connections are not tracked by Shutdown.
		a.sessions.Wait()
		a.close(shutdownCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
