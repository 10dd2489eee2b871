// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dawsync/lib/assets"
	"github.com/bureau-foundation/dawsync/lib/cli"
	"github.com/bureau-foundation/dawsync/lib/oplog"
	"github.com/bureau-foundation/dawsync/lib/rebuild"
	"github.com/bureau-foundation/dawsync/lib/updatetask"
	"github.com/bureau-foundation/dawsync/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	projectID   string
	oplogPath   string
	importPath  string
	out         string
	assetsDir   string
	remote      string
	concurrency int
	timeout     time.Duration
	dryRun      bool
}

func run() error {
	var (
		opts        options
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("dawsync-rebuild", pflag.ContinueOnError)
	flagSet.StringVar(&opts.projectID, "project", "", "project id (required)")
	flagSet.StringVar(&opts.oplogPath, "oplog", "", "SQLite operation log to replay")
	flagSet.StringVar(&opts.importPath, "import", "", "JSON or JSONC operation export to replay")
	flagSet.StringVarP(&opts.out, "out", "o", "", "write the snapshot here")
	flagSet.StringVar(&opts.assetsDir, "assets", "", "local asset store to reconcile audio files against")
	flagSet.StringVar(&opts.remote, "remote", "", "asset service URL for missing audio files")
	flagSet.IntVar(&opts.concurrency, "concurrency", rebuild.DefaultConcurrency, "parallel downloads")
	flagSet.DurationVar(&opts.timeout, "download-timeout", rebuild.DefaultDownloadTimeout, "per-file download timeout")
	flagSet.BoolVar(&opts.dryRun, "dry-run", false, "replay through a recording engine and write nothing")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("dawsync-rebuild")
		return nil
	}

	logger, err := cli.NewLogger(logLevel)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := execute(ctx, opts, logger, os.Stdout)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("rebuild failed with %d errors", len(result.Errors))
	}
	return nil
}

func (o options) validate() error {
	var errs []error
	if o.projectID == "" {
		errs = append(errs, errors.New("--project is required"))
	}
	if (o.oplogPath == "") == (o.importPath == "") {
		errs = append(errs, errors.New("exactly one of --oplog and --import is required"))
	}
	if o.out == "" && !o.dryRun {
		errs = append(errs, errors.New("--out is required unless --dry-run is set"))
	}
	if o.remote != "" && o.assetsDir == "" {
		errs = append(errs, errors.New("--remote needs --assets to download into"))
	}
	return errors.Join(errs...)
}

// execute runs one rebuild and prints its summary to stdout. A
// completed rebuild with errors is returned as a Result, not an error.
func execute(ctx context.Context, opts options, logger *slog.Logger, stdout io.Writer) (rebuild.Result, error) {
	if err := opts.validate(); err != nil {
		return rebuild.Result{}, err
	}
	ops, err := readOperations(ctx, opts, logger)
	if err != nil {
		return rebuild.Result{}, err
	}

	cfg := rebuild.Config{
		ProjectID:       opts.projectID,
		DownloadTimeout: opts.timeout,
		Concurrency:     opts.concurrency,
		Logger:          logger,
	}
	if opts.assetsDir != "" {
		store, err := assets.NewFileStore(opts.assetsDir)
		if err != nil {
			return rebuild.Result{}, err
		}
		cfg.Assets = store
		if opts.remote != "" {
			cfg.Source = &assets.HTTPSource{BaseURL: opts.remote}
		}
	}
	var engine *updatetask.RecordingEngine
	if opts.dryRun {
		engine = updatetask.NewRecordingEngine()
		cfg.Engine = engine
	}

	result := rebuild.New(cfg).Rebuild(ctx, ops)
	printSummary(stdout, result, engine)

	if opts.dryRun || result.Snapshot == nil {
		return result, nil
	}
	if err := os.WriteFile(opts.out, result.Snapshot, 0o644); err != nil {
		return result, fmt.Errorf("writing snapshot: %w", err)
	}
	logger.Info("snapshot written", "path", opts.out, "bytes", len(result.Snapshot))
	return result, nil
}

func readOperations(ctx context.Context, opts options, logger *slog.Logger) ([]oplog.Operation, error) {
	if opts.importPath != "" {
		file, err := os.Open(opts.importPath)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return oplog.ReadJSONC(file)
	}

	if _, err := os.Stat(opts.oplogPath); err != nil {
		return nil, err
	}
	store, err := oplog.OpenSQLite(opts.oplogPath, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	records, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	// Buffered operations are replayed too; the rebuild reports any
	// whose dependencies never arrived.
	ops := make([]oplog.Operation, len(records))
	for i, record := range records {
		ops[i] = record.Operation
	}
	return ops, nil
}

func printSummary(w io.Writer, result rebuild.Result, engine *updatetask.RecordingEngine) {
	status := "ok"
	if !result.Success {
		status = "failed"
	}
	fmt.Fprintf(w, "rebuild %s in %s\n", status, result.Metadata.RebuildTime.Round(time.Millisecond))
	fmt.Fprintf(w, "  operations: %d applied of %d\n", result.OperationsApplied, result.Metadata.TotalOperations)
	fmt.Fprintf(w, "  boxes: %d  tracks: %d\n", result.Metadata.BoxCount, result.Metadata.TrackCount)
	fmt.Fprintf(w, "  audio files: %d needed, %d downloaded\n", len(result.AudioFilesNeeded), len(result.AudioFilesDownloaded))
	if engine != nil {
		fmt.Fprintf(w, "  engine: %d tasks in %d transactions\n", len(engine.Calls()), engine.Transactions())
	}
	for _, err := range result.Errors {
		fmt.Fprintf(w, "  error: %v\n", err)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "  warning: %v\n", warning)
	}
}
