// Package main provides the entry point for sessiondriver.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sessiondriver/sessiondriver/internal/config"
	"github.com/sessiondriver/sessiondriver/internal/dashboard"
	"github.com/sessiondriver/sessiondriver/internal/dispatcher"
	"github.com/sessiondriver/sessiondriver/internal/forwarder"
	"github.com/sessiondriver/sessiondriver/internal/metrics"
	"github.com/sessiondriver/sessiondriver/internal/middleware"
	"github.com/sessiondriver/sessiondriver/internal/portalloc"
	"github.com/sessiondriver/sessiondriver/internal/ready"
	"github.com/sessiondriver/sessiondriver/internal/session"
	"github.com/sessiondriver/sessiondriver/internal/stats"
	"github.com/sessiondriver/sessiondriver/pkg/version"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sessiondriver %s\n", version.Full())
		return
	}

	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	cfg.Validate()

	if cfg.WebDriverPath == "" {
		log.Fatal().Msg("SESSIONDRIVER_WEBDRIVER must name a webdriver executable")
	}

	opsWatcher, err := config.WatchOpsConfig(cfg.OpsConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("could not start ops config watcher")
	}
	defer opsWatcher.Close()
	if cfg.OpsConfigPath != "" {
		opsWatcher.OnReload(func(oc config.OpsConfig) { applyLogLevel(oc.LogLevel) })
	}

	printBanner()

	registry := session.New(cfg.TTI)
	ports := portalloc.New(cfg.Host, cfg.BasePort)
	fwd := forwarder.New(cfg.UpstreamProto)
	prober := ready.New()
	activity := stats.New()

	registry.OnExpired(func(b *session.Browser) {
		metrics.SessionsDestroyedTotal.WithLabelValues("expired").Inc()
		metrics.SessionsActive.Set(float64(registry.Len()))
		activity.Forget(b.ID)
		log.Info().Str("session_id", b.ID.String()).Msg("session expired")
	})

	disp := dispatcher.New(cfg, registry, ports, fwd, prober, activity)

	var finalHandler http.Handler = disp
	if cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/", disp)
		finalHandler = mux
	}
	finalHandler = middleware.Chain(middleware.Logging, middleware.Recovery)(finalHandler)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           finalHandler,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.DashboardOn {
		go func() {
			snapshot := opsWatcher.Snapshot()
			if err := dashboard.Run(registry, snapshot.DashboardRefresh); err != nil {
				log.Warn().Err(err).Msg("dashboard exited with error")
			}
		}()
	}

	go func() {
		log.Info().Str("address", addr).Str("webdriver", cfg.WebDriverPath).Msg("sessiondriver is ready to accept requests")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	signal.Stop(quit)

	log.Info().Msg("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	if err := registry.Close(); err != nil {
		log.Error().Err(err).Msg("session registry close error")
	}

	log.Info().Msg("shutdown complete")
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})
	applyLogLevel(level)
}

// applyLogLevel sets the global zerolog level, called both at startup
// (from SESSIONDRIVER_LOG_LEVEL) and on every ops config reload (from
// OpsConfig.LogLevel), so the hot-reloadable knob actually takes effect.
func applyLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func printBanner() {
	banner := `
 ___ ___ ___ ___ ___ ___  _  _ ___  ___ _____   _____ ___
/ __| __/ __/ __|_ _/ _ \| \| |   \| _ \_ _\ \ / / __| _ \
\__ \ _|\__ \__ \| | (_) | .' | |) |   /| | \ V /| _||   /
|___/___|___/___/___\___/|_|\_|___/|_|_\___| \_/ |___|_|_\
`
	fmt.Println(banner)
	log.Info().Str("version", version.Full()).Str("go_version", version.GoVersion()).Msg("starting sessiondriver")
}
