package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"ielts-speaking/internal/config"
	"ielts-speaking/internal/examiner"
	"ielts-speaking/internal/httpapi"
	"ielts-speaking/internal/llm"
	"ielts-speaking/internal/llm/anyllm"
	"ielts-speaking/internal/llm/openai"
	"ielts-speaking/internal/metrics"
	"ielts-speaking/internal/resilience"
	"ielts-speaking/internal/speaking"
	"ielts-speaking/internal/storage"
	"ielts-speaking/internal/telegram"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", "error", err)
	}

	app := config.LoadAppConfig()
	setupLogger(app.Log)

	if err := run(app); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(app *config.AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(app.SpeakingConfigPath)
	if err != nil {
		return fmt.Errorf("load speaking config: %w", err)
	}
	slog.Info("speaking config loaded", "path", app.SpeakingConfigPath, "parts", len(cfg.Parts))

	shutdownTelemetry, err := metrics.InitProvider(ctx, metrics.ProviderConfig{ServiceName: "ielts-speaking"})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	m, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	primary, err := newProvider(app.LLM)
	if err != nil {
		return fmt.Errorf("primary llm: %w", err)
	}
	provider := resilience.NewLLMFallback(app.LLM.Provider, primary, resilience.BreakerConfig{})
	if app.Fallback != nil {
		fallback, err := newProvider(*app.Fallback)
		if err != nil {
			return fmt.Errorf("fallback llm: %w", err)
		}
		provider.AddFallback(app.Fallback.Provider, fallback)
	}
	slog.Info("llm providers ready", "providers", provider.Providers())

	exam := examiner.New(provider, cfg, m)
	archive := storage.NewArchive(app.Storage.ResultsDir)

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", app.Server.Port),
		Handler: httpapi.New(httpapi.Deps{
			Questions: exam,
			Evaluator: exam,
			Archive:   archive,
			Metrics:   m,
			Ready:     provider.Ready,
			Logger:    slog.Default(),
		}).Routes(),
		ReadTimeout:  app.Server.ReadTimeout,
		WriteTimeout: app.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Server.ShutdownTimeout)
		defer cancel()
		slog.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	if app.Telegram.Enabled() {
		bot := telegram.New(app.Telegram.Token)
		ranges := make([]telegram.PartRange, 0, len(cfg.Parts))
		for _, p := range cfg.Parts {
			ranges = append(ranges, telegram.PartRange{Part: speaking.Part(p.ID), Min: p.MinQuestions, Max: p.MaxQuestions})
		}
		handler := telegram.NewHandler(bot, telegram.Deps{
			Questions:   exam,
			Evaluator:   exam,
			Test:        speaking.NewConfig(cfg),
			Archive:     archive,
			Metrics:     m,
			RateLimit:   app.Telegram.RateLimit,
			RateWindow:  app.Telegram.RateWindow,
			IdleTimeout: app.Telegram.IdleTimeout,
			Logger:      slog.Default(),
		}, ranges...)

		g.Go(func() error { return ignoreCanceled(handler.Run(gctx)) })
		g.Go(func() error {
			slog.Info("telegram bot polling")
			return ignoreCanceled(bot.StartPolling(gctx, handler.HandleUpdate))
		})
	} else {
		slog.Info("TELEGRAM_BOT_TOKEN not set, telegram bot disabled")
	}

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newProvider builds the completion backend described by cfg. OpenAI goes
// through the official SDK, everything else through any-llm-go.
func newProvider(cfg config.LLMConfig) (llm.Provider, error) {
	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	slog.Info("llm configured", "model", cfg.GetModelInfo())

	if cfg.Provider == "openai" {
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(cfg.Timeout))
		}
		return openai.New(cfg.APIKey, cfg.Model, opts...)
	}

	var opts []anyllmlib.Option
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	return anyllm.New(cfg.Provider, cfg.Model, opts...)
}
