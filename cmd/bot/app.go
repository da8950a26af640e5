package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"tgbotkit/internal/config"
	"tgbotkit/internal/keychain"
	"tgbotkit/internal/logging"
	"tgbotkit/internal/metrics"
	"tgbotkit/modules/demo"
	"tgbotkit/modules/help"
	"tgbotkit/modules/pingpong"
	"tgbotkit/pkg/tgbot"
)

const (
	defaultShutdownTimeout  = 10 * time.Second
	metricsShutdownTimeout  = 5 * time.Second
	metricsReadHeaderTimeout = 5 * time.Second
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd(keychain.SetToken).ExecuteContext(ctx)
}

func newRootCmd(storeToken func(string) error) *cobra.Command {
	var configPath string

	runBotCmd := func(cmd *cobra.Command, _ []string) error {
		return runBot(cmd.Context(), configPath, cmd.ErrOrStderr())
	}

	cmd := &cobra.Command{
		Use:           "bot",
		Short:         "Long-polling Telegram bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runBotCmd,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Config file path.")

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted (default)",
		Args:  cobra.NoArgs,
		RunE:  runBotCmd,
	})
	cmd.AddCommand(newTokenCmd(storeToken))

	return cmd
}

func newTokenCmd(storeToken func(string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the bot token stored in the OS keychain",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <token>",
		Short: "Store the bot token in the OS keychain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storeToken(args[0]); err != nil {
				return fmt.Errorf("store bot token: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "bot token stored in keychain")
			return nil
		},
	})

	return cmd
}

func runBot(ctx context.Context, configPath string, logOutput io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logOutput, logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return fmt.Errorf("new logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("new metrics collector: %w", err)
	}

	bot, err := newBot(cfg, logger, collector)
	if err != nil {
		return err
	}
	if err := registerRuntimeModules(ctx, bot, logger); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		ready := func() bool {
			_, ok := bot.Info()
			return ok
		}
		shutdown := serveMetrics(cfg.MetricsAddr, newMetricsRouter(registry, ready), logger)
		defer shutdown()
	}

	stopOnSignal := context.AfterFunc(ctx, func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
		defer cancel()

		if err := bot.Stop(stopCtx); err != nil {
			logger.Warn("stop bot failed", "error", err)
		}
	})
	defer stopOnSignal()

	if err := bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func newBot(cfg config.Config, logger *slog.Logger, observer tgbot.Observer) (*tgbot.Bot, error) {
	options := []tgbot.Option{
		tgbot.WithLogger(logger),
		tgbot.WithObserver(observer),
		tgbot.WithPollTimeout(cfg.PollTimeout),
		tgbot.WithRateLimit(cfg.OutboundRate, cfg.OutboundBurst),
	}
	if cfg.APIBaseURL != "" {
		options = append(options, tgbot.WithBaseURL(cfg.APIBaseURL))
	}

	bot, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		return nil, fmt.Errorf("new bot: %w", err)
	}

	return bot, nil
}

func registerRuntimeModules(ctx context.Context, bot *tgbot.Bot, logger *slog.Logger) error {
	modules := []tgbot.Module{
		pingpong.New(),
		help.New(),
		demo.New(demo.WithLogger(logger)),
	}
	for _, module := range modules {
		if err := bot.RegisterModule(ctx, module); err != nil {
			return err
		}
	}

	return nil
}

func newMetricsRouter(gatherer prometheus.Gatherer, ready func() bool) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !ready() {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return router
}

// serveMetrics listens on addr in the background and returns the shutdown func.
func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) func() {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
}
