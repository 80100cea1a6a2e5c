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
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/costpath/services/costpath"
	"github.com/AleutianAI/costpath/services/costpath/algebra"
	"github.com/AleutianAI/costpath/services/costpath/knowledge"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis and knowledge base over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Server.Port
			}
			if debug {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			store, closeStore, err := a.openStore(a.cfg.Knowledge.StorePath)
			if err != nil {
				return err
			}
			defer closeInto(&err, closeStore)

			base, err := loadKnowledgeFile(a.cfg.Knowledge.File)
			if err != nil {
				return err
			}

			svc := costpath.NewService(costpath.ServiceConfig{
				ParamIndex: a.cfg.Analysis.ParamIndex,
				TracesKey:  a.cfg.Analysis.TracesKey,
				Solver:     a.cfg.Solver,
			}, base, store, a.logger)
			router := costpath.NewRouter(svc, a.cfg.Telemetry.ServiceName)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.logger, fmt.Sprintf(":%d", port), router)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "port to listen on (default from config)")
	cmd.Flags().BoolVar(&debug, "debug", false, "gin debug mode")
	return cmd
}

func loadKnowledgeFile(path string) (map[string]algebra.Expr, error) {
	if path == "" {
		return nil, nil
	}
	return knowledge.LoadFile(path)
}

// serve runs srv until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, logger *slog.Logger, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting costpath server", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down costpath server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
