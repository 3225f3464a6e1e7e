// marketmaker is an automated market maker for a binary (yes/no)
// prediction-market exchange. For each configured market it maintains a
// symmetric two-sided ladder of resting limit orders around an internally
// tracked fair value, shifting that fair value in response to its own
// fills, and standing down from markets that have moved sharply away from
// its price until a cooldown elapses.
//
// Architecture:
//
//	main.go                     — entry point: loads credentials + strategy, starts the scheduler
//	internal/exchange/auth.go   — bearer-token session, re-logs in on a 5-hour budget
//	internal/exchange/client.go — REST client: markets, positions, orders, batched create/cancel
//	internal/market/book.go     — dense [1,99] price->quantity views, public and own
//	internal/strategy/ladder.go — pure ladder planner
//	internal/strategy/reconcile.go — minimal cancel/place diff against resting orders
//	internal/strategy/controller.go — per-market quoting state machine
//	internal/scheduler/scheduler.go — top-level make/clear loop
//	internal/store/store.go     — JSON file persistence for per-market state
//
// Usage: marketmaker <operation> [<profile>], operation in {make, clear}.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketmaker/internal/config"
	"marketmaker/internal/exchange"
	"marketmaker/internal/metrics"
	"marketmaker/internal/scheduler"
	"marketmaker/internal/store"
	"marketmaker/internal/strategy"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: marketmaker <make|clear> [profile]")
		os.Exit(1)
	}
	operation := os.Args[1]
	if operation != "make" && operation != "clear" {
		fmt.Fprintf(os.Stderr, "unknown operation %q: must be make or clear\n", operation)
		os.Exit(1)
	}

	profileName := "default"
	if len(os.Args) > 2 {
		profileName = os.Args[2]
	}

	cfgPath := "./config.yaml"
	if p := os.Getenv("MAKER_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	credsPath := "./credentials.yaml"
	if p := os.Getenv("MAKER_CREDENTIALS"); p != "" {
		credsPath = p
	}
	creds, err := config.LoadCredentials(credsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	strategiesPath := "./strategies.yaml"
	if p := os.Getenv("MAKER_STRATEGIES"); p != "" {
		strategiesPath = p
	}
	strategies, err := config.LoadStrategies(strategiesPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	profile, ok := strategies.GetStrategy(profileName)
	if !ok {
		fmt.Println("No strategy found with this name.")
		return
	}

	envCreds, ok := creds[profile.Env]
	if !ok {
		fmt.Fprintf(os.Stderr, "no credentials configured for environment %q\n", profile.Env)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	session := exchange.NewSession(profile.Env, envCreds)
	client := exchange.NewClient(profile.Env, session, cfg.DryRun, logger)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	go serveMetrics(reg, logger)

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("failed to open state store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	controller := strategy.NewController(client, m, logger, envCreds.AdvancedAPI)
	sched := scheduler.New(client, controller, st, m, logger, profile)

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE - no real orders will be placed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	switch operation {
	case "clear":
		sched.Clear(ctx)
	case "make":
		if err := sched.Make(ctx); err != nil {
			logger.Error("scheduler exited with error", "err", err)
			os.Exit(1)
		}
	}
}

func newLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func serveMetrics(reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	addr := ":9090"
	if p := os.Getenv("MAKER_METRICS_ADDR"); p != "" {
		addr = p
	}
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "err", err)
	}
}
