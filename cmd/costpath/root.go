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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/costpath/pkg/logging"
	"github.com/AleutianAI/costpath/services/costpath/algebra"
	"github.com/AleutianAI/costpath/services/costpath/config"
	"github.com/AleutianAI/costpath/services/costpath/knowledge"
	storage "github.com/AleutianAI/costpath/services/costpath/storage/badger"
	"github.com/AleutianAI/costpath/services/costpath/telemetry"
)

// app carries state shared by every subcommand. It is filled in by the
// root command's PersistentPreRunE.
type app struct {
	configPath string
	logLevel   string
	logJSON    bool

	cfg      config.Config
	log      *logging.Logger
	logger   *slog.Logger
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "costpath",
		Short:         "Infer per-path cost expressions from function call traces",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "log JSON to stderr")

	root.AddCommand(
		newAnalyzeCmd(a),
		newPathsCmd(a),
		newServeCmd(a),
		newKBCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logJSON {
		cfg.Logging.JSON = true
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON,
		Writer:  cmd.ErrOrStderr(),
	})
	a.logger = a.log.Slog()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	if a.shutdown != nil {
		err = a.shutdown(ctx)
	}
	if a.log != nil {
		if cerr := a.log.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// openStore opens the knowledge store at path. An empty path returns a nil
// store and a no-op closer.
func (a *app) openStore(path string) (*knowledge.Store, func() error, error) {
	if path == "" {
		return nil, func() error { return nil }, nil
	}
	cfg := storage.DefaultConfig(path)
	cfg.Logger = a.logger
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open knowledge store: %w", err)
	}
	return knowledge.NewStore(db, a.logger), db.Close, nil
}

// closeInto runs closer and joins its error into *errp, so a failed flush of
// the knowledge store is reported even when the command itself succeeded.
func closeInto(errp *error, closer func() error) {
	if cerr := closer(); cerr != nil {
		*errp = errors.Join(*errp, fmt.Errorf("close knowledge store: %w", cerr))
	}
}

// loadKnown layers the knowledge file over the store's entries.
func (a *app) loadKnown(ctx context.Context, file string, store *knowledge.Store) (map[string]algebra.Expr, error) {
	var layers []map[string]algebra.Expr
	if store != nil {
		stored, err := store.Exprs(ctx)
		if err != nil {
			return nil, err
		}
		layers = append(layers, stored)
	}
	if file != "" {
		fromFile, err := knowledge.LoadFile(file)
		if err != nil {
			return nil, err
		}
		layers = append(layers, fromFile)
	}
	known := knowledge.Merge(nil, layers...)
	a.logger.Debug("known expressions loaded", slog.Int("entries", len(known)))
	return known, nil
}
