// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dawsync/lib/cli"
	"github.com/bureau-foundation/dawsync/lib/config"
	"github.com/bureau-foundation/dawsync/lib/version"
	"github.com/bureau-foundation/dawsync/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		listen      string
		metrics     string
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("dawsync-relay", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to dawsync.yaml; flags override its relay section")
	flagSet.StringVar(&listen, "listen", ":7700", "websocket listen address")
	flagSet.StringVar(&metrics, "metrics", ":9100", "prometheus listen address (empty disables)")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("dawsync-relay")
		return nil
	}

	cfg := config.Default()
	if configPath != "" || os.Getenv(config.EnvironmentVariable) != "" {
		loaded, err := cli.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if flagSet.Changed("listen") || configPath == "" {
		cfg.Relay.Listen = listen
	}
	if flagSet.Changed("metrics") || configPath == "" {
		cfg.Relay.Metrics = metrics
	}
	if err := cfg.ValidateRelay(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := cli.NewLogger(logLevel)
	if err != nil {
		return err
	}
	logger = logger.With("service", "dawsync-relay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	relay := transport.NewRelay(logger, transport.NewRelayMetrics(registry))

	servers := []*http.Server{{
		Addr:              cfg.Relay.Listen,
		Handler:           newMux(relay),
		ReadHeaderTimeout: 5 * time.Second,
	}}
	if cfg.Relay.Metrics != "" {
		servers = append(servers, &http.Server{
			Addr:              cfg.Relay.Metrics,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	failed := make(chan error, len(servers))
	for _, server := range servers {
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				failed <- fmt.Errorf("serving %s: %w", server.Addr, err)
			}
		}()
	}
	logger.Info("relay running",
		"version", version.Info(),
		"listen", cfg.Relay.Listen,
		"metrics", cfg.Relay.Metrics,
	)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-failed:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	relay.Close()
	for _, server := range servers {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", "addr", server.Addr, "error", err)
		}
	}
	return serveErr
}

func newMux(relay *transport.Relay) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", relay)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

