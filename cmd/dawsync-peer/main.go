// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dawsync/collab"
	"github.com/bureau-foundation/dawsync/lib/assets"
	"github.com/bureau-foundation/dawsync/lib/cli"
	"github.com/bureau-foundation/dawsync/lib/config"
	"github.com/bureau-foundation/dawsync/lib/kvstore"
	"github.com/bureau-foundation/dawsync/lib/oplog"
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
		logLevel    string
		metricsAddr string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("dawsync-peer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to dawsync.yaml (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	flagSet.StringVar(&metricsAddr, "metrics", "", "serve prometheus metrics on this address")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("dawsync-peer")
		return nil
	}

	cfg, err := cli.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	logger, err := cli.NewLogger(logLevel)
	if err != nil {
		return err
	}
	logger = logger.With("service", "dawsync-peer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	peer, err := openPeer(ctx, cfg, logger, registry)
	if err != nil {
		return err
	}
	defer peer.close(logger)

	peer.agent.OnChange(func(change collab.Change) {
		logger.Info("replica changed",
			"origin", change.Origin,
			"from", change.UserID,
			"operations", len(change.Operations),
		)
	})
	if err := peer.agent.Initialize(ctx); err != nil {
		return err
	}

	if metricsAddr != "" {
		server := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer server.Close()
	}

	logger.Info("peer running",
		"version", version.Info(),
		"project", cfg.Peer.ProjectID,
		"user", cfg.Peer.UserID,
		"transport", cfg.Transport.Kind,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-peer.disconnected:
		logger.Error("transport disconnected", "error", peer.transportErr())
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := peer.agent.Close(closeCtx); err != nil {
		return fmt.Errorf("closing agent: %w", err)
	}
	return nil
}

// peer bundles an agent with the resources it owns.
type peer struct {
	agent     *collab.Agent
	transport transport.Transport
	state     kvstore.Store
	opLog     oplog.Store
	cache     *assets.Cache

	// disconnected closes when the transport fails for good; nil
	// (never ready) for transports that do not report it.
	disconnected <-chan struct{}
	transportErr func() error

	closers []func() error
}

func (p *peer) close(logger *slog.Logger) {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			logger.Warn("releasing resource failed", "error", err)
		}
	}
}

func openPeer(ctx context.Context, cfg *config.Config, logger *slog.Logger, registerer prometheus.Registerer) (*peer, error) {
	p := &peer{transportErr: func() error { return nil }}
	fail := func(err error) (*peer, error) {
		p.close(logger)
		return nil, err
	}

	state, err := openState(cfg, logger)
	if err != nil {
		return fail(err)
	}
	p.state = state
	p.closers = append(p.closers, state.Close)

	if cfg.Storage.OpLog != "" {
		store, err := oplog.OpenSQLite(cfg.Storage.OpLog, logger)
		if err != nil {
			return fail(err)
		}
		p.opLog = store
		p.closers = append(p.closers, store.Close)
	}

	cache, err := openAssets(cfg, logger)
	if err != nil {
		return fail(err)
	}
	p.cache = cache
	p.closers = append(p.closers, func() error { cache.Close(); return nil })

	if err := p.openTransport(ctx, cfg, logger); err != nil {
		return fail(err)
	}

	agent, err := collab.New(collab.Config{
		ProjectID:             cfg.Peer.ProjectID,
		UserID:                cfg.Peer.UserID,
		SyncInterval:          cfg.Sync.Interval,
		DependencyTimeout:     cfg.Sync.DependencyTimeout,
		DependencyMaxAttempts: cfg.Sync.DependencyMaxAttempts,
	}, collab.Deps{
		Transport: p.transport,
		State:     p.state,
		OpLog:     p.opLog,
		Assets:    p.cache,
		Logger:    logger,
		Metrics:   collab.NewMetrics(registerer),
	})
	if err != nil {
		return fail(err)
	}
	p.agent = agent
	return p, nil
}

func openState(cfg *config.Config, logger *slog.Logger) (kvstore.Store, error) {
	switch cfg.Storage.State {
	case config.StateMemory:
		return kvstore.NewMemory(), nil
	case config.StateBadger:
		return kvstore.OpenBadger(kvstore.BadgerConfig{
			Path:       cfg.Storage.StateDir,
			GCInterval: 10 * time.Minute,
			Logger:     logger,
		})
	}
	return nil, fmt.Errorf("unknown state store %q", cfg.Storage.State)
}

func openAssets(cfg *config.Config, logger *slog.Logger) (*assets.Cache, error) {
	store, err := assets.NewFileStore(cfg.Assets.Dir)
	if err != nil {
		return nil, err
	}
	var source assets.Source
	if cfg.Assets.RemoteURL != "" {
		source = &assets.HTTPSource{BaseURL: cfg.Assets.RemoteURL}
	}
	return assets.NewCache(assets.CacheConfig{
		Store:        store,
		Source:       source,
		MaxBytes:     cfg.Assets.CacheBytes,
		TTL:          cfg.Assets.CacheTTL,
		FetchTimeout: cfg.Assets.DownloadTimeout,
		Logger:       logger,
	})
}

func (p *peer) openTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	projectID, userID := cfg.Peer.ProjectID, cfg.Peer.UserID
	switch cfg.Transport.Kind {
	case config.TransportMemory:
		// A private hub: useful to exercise a replica and its stores
		// without any network.
		p.transport = transport.NewMemoryHub().Join(projectID, userID)

	case config.TransportWebSocket:
		ws, err := transport.DialWebSocket(ctx, transport.WebSocketConfig{
			URL:       cfg.Transport.RelayURL,
			ProjectID: projectID,
			UserID:    userID,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		p.transport = ws
		p.disconnected = ws.Done()
		p.transportErr = ws.Err

	case config.TransportRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Transport.RedisAddr})
		r, err := transport.NewRedis(ctx, client, projectID, userID, logger)
		if err != nil {
			client.Close()
			return err
		}
		p.transport = r
		p.closers = append(p.closers, client.Close)

	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport.Kind)
	}
	p.closers = append(p.closers, p.transport.Close)
	return nil
}
