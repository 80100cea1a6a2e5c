// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package algebra

import (
	"math"
	"strconv"
	"strings"
)

// String renders e, e.g. "2*X0^2 + T_4 - 3". Equal expressions render
// identically; the output is accepted by Parse.
func (e Expr) String() string {
	if len(e.terms) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, t := range e.terms {
		s := t.String()
		switch {
		case i == 0:
			sb.WriteString(s)
		case strings.HasPrefix(s, "-"):
			sb.WriteString(" - ")
			sb.WriteString(s[1:])
		default:
			sb.WriteString(" + ")
			sb.WriteString(s)
		}
	}
	return sb.String()
}

func (t term) String() string {
	if len(t.mono) == 0 {
		return formatNum(t.coeff)
	}
	m := t.mono.key()
	switch t.coeff {
	case 1:
		return m
	case -1:
		return "-" + m
	}
	return formatNum(t.coeff) + "*" + m
}

func (p power) String() string {
	if p.exp == 1 {
		return p.f.key
	}
	return p.f.key + "^" + strconv.Itoa(p.exp)
}

// formatNum prints integers without a fraction and everything else with 12
// significant digits, which hides float noise from equality checks.
func formatNum(c float64) string {
	if c == math.Trunc(c) && math.Abs(c) < 1e15 {
		return strconv.FormatFloat(c, 'f', -1, 64)
	}
	return strconv.FormatFloat(c, 'g', 12, 64)
}
