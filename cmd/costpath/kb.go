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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/costpath/services/costpath/knowledge"
	"github.com/AleutianAI/costpath/services/costpath/report"
)

var errNoStore = errors.New("no knowledge store: set --store or knowledge.store_path")

func newKBCmd(a *app) *cobra.Command {
	var storePath string
	kb := &cobra.Command{
		Use:   "kb",
		Short: "Manage the persistent knowledge base of known expressions",
	}
	kb.PersistentFlags().StringVar(&storePath, "store", "", "knowledge store directory (default from config)")

	// withStore opens the store for the duration of fn.
	withStore := func(cmd *cobra.Command, fn func(*knowledge.Store) error) (err error) {
		path := storePath
		if path == "" {
			path = a.cfg.Knowledge.StorePath
		}
		if path == "" {
			return errNoStore
		}
		store, closeStore, err := a.openStore(path)
		if err != nil {
			return err
		}
		defer closeInto(&err, closeStore)
		return fn(store)
	}

	var format string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored expressions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(s *knowledge.Store) error {
				entries, err := s.List(cmd.Context())
				if err != nil {
					return err
				}
				if format != "" {
					return report.Encode(cmd.OutOrStdout(), entries, format)
				}
				for _, e := range entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (%s)\n", e.Key, e.Expr, e.Source)
				}
				return nil
			})
		},
	}
	list.Flags().StringVar(&format, "format", "", "json or yaml instead of plain lines")

	put := &cobra.Command{
		Use:   "put <key> <expr>",
		Short: "Store a number or expression under a description or signature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := knowledge.Value(args[0], args[1])
			if err != nil {
				return err
			}
			return withStore(cmd, func(s *knowledge.Store) error {
				entry, err := s.Put(cmd.Context(), args[0], expr, knowledge.SourceManual, "")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", entry.Key, entry.Expr)
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a stored expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(s *knowledge.Store) error {
				return s.Delete(cmd.Context(), args[0])
			})
		},
	}

	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a YAML or JSON file of known expressions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			known, err := knowledge.LoadFile(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, func(s *knowledge.Store) error {
				n, err := s.Import(cmd.Context(), known, knowledge.SourceImport)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries\n", n)
				return nil
			})
		},
	}

	kb.AddCommand(list, put, del, imp)
	return kb
}
