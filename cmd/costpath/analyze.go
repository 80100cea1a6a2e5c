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
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/costpath/services/costpath/analysis"
	"github.com/AleutianAI/costpath/services/costpath/ingest"
	"github.com/AleutianAI/costpath/services/costpath/report"
	"github.com/AleutianAI/costpath/services/costpath/solver"
	"github.com/AleutianAI/costpath/services/costpath/telemetry"
)

type analyzeOptions struct {
	known       string
	store       string
	output      string
	format      string
	metricsFile string
	paramIndex  int
	seed        uint64
	learn       bool
	quiet       bool
}

func newAnalyzeCmd(a *app) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <trace.json>...",
		Short: "Infer a cost expression for every path of every traced function",
		Long: `Loads trace documents, links recursive calls, partitions traces into
control-flow paths and generalizes each path's loop counts into a symbolic
cost expression in the input size X0.

The result is written as JSON or YAML. A path summary goes to stderr.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, a, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.known, "known", "", "YAML/JSON file of known expressions (default from config)")
	f.StringVar(&opts.store, "store", "", "knowledge store directory (default from config)")
	f.StringVarP(&opts.output, "output", "o", "", "write the result to this file instead of stdout")
	f.StringVar(&opts.format, "format", "", "result format: json or yaml (default from config)")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file (requires the prometheus exporter)")
	f.IntVar(&opts.paramIndex, "param-index", 0, "call argument used as the input size")
	f.Uint64Var(&opts.seed, "seed", 0, "solver seed")
	f.BoolVar(&opts.learn, "learn", false, "store single-path results in the knowledge store")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "do not print the path summary")
	return cmd
}

func runAnalyze(cmd *cobra.Command, a *app, opts *analyzeOptions, args []string) (err error) {
	ctx := cmd.Context()
	cfg := a.cfg
	flags := cmd.Flags()
	if !flags.Changed("known") {
		opts.known = cfg.Knowledge.File
	}
	if !flags.Changed("store") {
		opts.store = cfg.Knowledge.StorePath
	}
	if opts.format == "" {
		opts.format = cfg.Output.Format
	}
	if !flags.Changed("metrics-file") {
		opts.metricsFile = cfg.Telemetry.MetricsFile
	}
	if !flags.Changed("param-index") {
		opts.paramIndex = cfg.Analysis.ParamIndex
	}
	solverCfg := cfg.Solver
	if flags.Changed("seed") {
		solverCfg.Seed = opts.seed
	}
	if opts.learn && opts.store == "" {
		return fmt.Errorf("--learn requires a knowledge store (--store or knowledge.store_path)")
	}

	store, closeStore, err := a.openStore(opts.store)
	if err != nil {
		return err
	}
	defer closeInto(&err, closeStore)

	known, err := a.loadKnown(ctx, opts.known, store)
	if err != nil {
		return err
	}

	trees, err := ingest.NewLoader(cfg.Analysis.TracesKey, a.logger).LoadFiles(ctx, args)
	if err != nil {
		return err
	}

	analyzer := analysis.New(analysis.Options{
		ParamIndex: opts.paramIndex,
		Solver:     solver.New(solverCfg, a.logger),
		Logger:     a.logger,
	})
	res, err := analyzer.Run(ctx, trees, known)
	if err != nil {
		return err
	}

	if err := writeResult(cmd.OutOrStdout(), opts.output, opts.format, res); err != nil {
		return err
	}
	if !opts.quiet {
		errOut := cmd.ErrOrStderr()
		styled := report.IsTerminal(errOut)
		if err := report.WritePaths(errOut, res.Paths, res.Exprs, styled); err != nil {
			return err
		}
		if err := report.WriteSummary(errOut, res, styled); err != nil {
			return err
		}
	}

	if opts.learn {
		learned, err := store.Learn(ctx, res)
		if err != nil {
			return err
		}
		a.logger.Info("results learned", slog.Int("entries", len(learned)))
	}
	if opts.metricsFile != "" {
		if err := telemetry.WriteMetricsFile(opts.metricsFile); err != nil {
			return err
		}
	}
	return nil
}

func writeResult(stdout io.Writer, path, format string, res *analysis.Result) error {
	if path == "" {
		return report.Encode(stdout, res, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output %s: %w", path, err)
	}
	if err := report.Encode(f, res, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
