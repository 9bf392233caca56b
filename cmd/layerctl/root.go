// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianLayers/pkg/logging"
	"github.com/AleutianAI/AleutianLayers/pkg/ux"
	"github.com/AleutianAI/AleutianLayers/services/layers/config"
	"github.com/AleutianAI/AleutianLayers/services/layers/languages"
	"github.com/AleutianAI/AleutianLayers/services/layers/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath  string
	logLevel    string
	output      string
	metricsAddr string
	language    string
}

// app holds what PersistentPreRunE builds for a command run.
type app struct {
	cfg      config.Config
	logger   *logging.Logger
	registry *languages.Registry
	printer  *ux.Printer

	shutdown   func(context.Context) error
	stopServer context.CancelFunc
}

// newRootCmd builds the layerctl command tree.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	a := &app{}

	root := &cobra.Command{
		Use:   "layerctl",
		Short: "Inspect layered tree-sitter parses of source files",
		Long: `layerctl parses files into a tree of language layers, one per
embedded language, and prints highlights, injections, layer structure and
query matches. The watch command keeps a document open and reparses
incrementally as the file changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd, flags)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.aleutian/layers.yaml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	pf.StringVarP(&flags.output, "output", "o", "", "output mode: rich, plain or machine (default: rich on a terminal)")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on host:port")
	pf.StringVarP(&flags.language, "language", "l", "", "root language, overriding the file extension")

	root.AddCommand(
		newHighlightCmd(a, flags),
		newInjectionsCmd(a, flags),
		newLayersCmd(a, flags),
		newQueryCmd(a, flags),
		newPatchCmd(a, flags),
		newWatchCmd(a, flags),
		newLanguagesCmd(a),
	)
	return root
}

// setup loads the config and builds logging, telemetry and the registry.
func (a *app) setup(cmd *cobra.Command, flags *globalFlags) error {
	path := flags.configPath
	if path == "" {
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.metricsAddr != "" {
		cfg.Telemetry.MetricExporter = "prometheus"
		cfg.Telemetry.MetricsAddr = flags.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		File:    cfg.Logging.File,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.logger = logger
	slog.SetDefault(logger.Slog())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.shutdown = shutdown

	if cfg.Telemetry.MetricExporter == "prometheus" && cfg.Telemetry.MetricsAddr != "" {
		serveCtx, cancel := context.WithCancel(ctx)
		a.stopServer = cancel
		go func() {
			if err := telemetry.ServeMetrics(serveCtx, cfg.Telemetry.MetricsAddr, logger.Slog()); err != nil {
				logger.Slog().Error("metrics server stopped", slog.String("error", err.Error()))
			}
		}()
	}

	a.registry = languages.NewBuiltinRegistry(
		languages.WithQueryDir(cfg.Languages.QueryDir),
		languages.WithLogger(logger.Slog()),
	)

	mode := ux.ParseMode(flags.output)
	if flags.output == "" {
		mode = ux.DetectMode(os.Stdout)
	}
	a.printer = ux.NewPrinter(cmd.OutOrStdout(), mode)
	return nil
}

// teardown releases everything setup built. It tolerates a partial setup.
func (a *app) teardown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	if a.stopServer != nil {
		a.stopServer()
	}
	if a.registry != nil {
		a.registry.Close()
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}
