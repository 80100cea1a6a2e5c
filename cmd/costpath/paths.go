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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/costpath/services/costpath/analysis"
	"github.com/AleutianAI/costpath/services/costpath/ingest"
	"github.com/AleutianAI/costpath/services/costpath/report"
	"github.com/AleutianAI/costpath/services/costpath/trace"
)

func newPathsCmd(a *app) *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "paths <trace.json>...",
		Short: "Show how traces partition into control-flow paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trees, err := ingest.NewLoader(a.cfg.Analysis.TracesKey, a.logger).LoadFiles(cmd.Context(), args)
			if err != nil {
				return err
			}
			ps, err := analysis.Paths(trees)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			infos := make([]analysis.PathInfo, 0, ps.Len())
			for _, g := range ps.All() {
				infos = append(infos, g.Info())
			}
			if err := report.WritePaths(out, infos, nil, report.IsTerminal(out)); err != nil {
				return err
			}
			if dump {
				for _, t := range trees {
					fmt.Fprintf(out, "\n%s\n%s", t.Name, trace.Dump(t.Root))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "print every linked trace tree")
	return cmd
}
