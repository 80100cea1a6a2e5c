// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report renders analysis results.
//
// Encode writes a Result as JSON or YAML for machines. WritePaths prints
// the human path summary, styled with lipgloss when the destination is a
// terminal.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/costpath/services/costpath/analysis"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrUnknownFormat is returned for a format other than json or yaml.
var ErrUnknownFormat = errors.New("unknown output format")

var (
	colorTeal  = lipgloss.Color("#2CD7C7")
	colorAmber = lipgloss.Color("#F4D03F")
	colorRed   = lipgloss.Color("#E74C3C")
	colorSlate = lipgloss.Color("#2C4A54")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTeal)
	sigStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorSlate)
	okStyle    = lipgloss.NewStyle().Foreground(colorTeal)
	warnStyle  = lipgloss.NewStyle().Foreground(colorAmber)
	failStyle  = lipgloss.NewStyle().Foreground(colorRed)
)

// Encode writes v in the given format. JSON is indented by two spaces.
func Encode(w io.Writer, v any, format string) error {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// IsTerminal reports whether w is a terminal, which selects styled output.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type painter struct {
	styled bool
}

func (p painter) paint(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

// WritePaths prints the path summary:
//
//	Path summary:
//	- int fib(int): 2 paths
//	  - [path_0] (2, 3): 2 traces
//
// When exprs is non-nil each resolved path is followed by its expression
// and unresolved paths are marked.
func WritePaths(w io.Writer, paths []analysis.PathInfo, exprs map[string]map[int]string, styled bool) error {
	p := painter{styled: styled}
	var b strings.Builder

	b.WriteString(p.paint(titleStyle, "Path summary:"))
	b.WriteString("\n")

	counts := make(map[string]int)
	var order []string
	for _, info := range paths {
		if counts[info.Signature] == 0 {
			order = append(order, info.Signature)
		}
		counts[info.Signature]++
	}

	for _, sig := range order {
		fmt.Fprintf(&b, "- %s: %d paths\n", p.paint(sigStyle, sig), counts[sig])
		for _, info := range paths {
			if info.Signature != sig {
				continue
			}
			fmt.Fprintf(&b, "  - [path_%d] %s: %d traces",
				info.PathID,
				p.paint(mutedStyle, "("+strings.Join(info.Fingerprint, ", ")+")"),
				len(info.Trees))
			if exprs != nil {
				if expr, ok := exprs[sig][info.PathID]; ok {
					b.WriteString(" => " + p.paint(okStyle, expr))
				} else {
					b.WriteString(" " + p.paint(failStyle, "unresolved"))
				}
			}
			if info.Irregular {
				b.WriteString(" " + p.paint(warnStyle, "[irregular loop]"))
			}
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteSummary prints the run counters and any failures.
func WriteSummary(w io.Writer, res *analysis.Result, styled bool) error {
	p := painter{styled: styled}
	s := res.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", p.paint(titleStyle, "Run"), res.RunID)
	fmt.Fprintf(&b, "  %d traces, %d links, %d signatures, %d paths\n",
		s.Trees, s.Links, s.Signatures, s.Paths)
	status := p.paint(okStyle, fmt.Sprintf("%d resolved", s.Resolved))
	if s.Failed > 0 {
		status += ", " + p.paint(failStyle, fmt.Sprintf("%d failed", s.Failed))
	}
	fmt.Fprintf(&b, "  %s in %s\n", status, s.Duration.Round(time.Millisecond))

	for _, f := range res.Failures {
		fmt.Fprintf(&b, "  %s %s [path_%d] %s: %s\n",
			p.paint(failStyle, "x"), f.Signature, f.PathID, f.Kind, f.Message)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
