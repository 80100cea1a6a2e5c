// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package solver

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/AleutianAI/costpath/services/costpath/algebra"
)

// Genetic search parameters that are not worth exposing.
const (
	crossoverProb = 0.5
	mutationProb  = 0.1
	tournamentK   = 10
	parsimony     = 1.9
	constMin      = -10
	constMax      = 10
)

type opcode uint8

const (
	opVar opcode = iota
	opConst
	opAdd
	opMul
	opLog
	opSqrt
)

var primitives = []opcode{opAdd, opMul, opLog, opSqrt}

func (o opcode) arity() int {
	switch o {
	case opAdd, opMul:
		return 2
	case opLog, opSqrt:
		return 1
	}
	return 0
}

// program is an expression tree evolved by the search.
type program struct {
	op    opcode
	value float64
	args  []*program
}

// eval uses the protected log and sqrt: inputs where the real function is
// undefined (or log is near zero) evaluate to 1.
func (p *program) eval(v float64) float64 {
	switch p.op {
	case opVar:
		return v
	case opConst:
		return p.value
	case opAdd:
		return p.args[0].eval(v) + p.args[1].eval(v)
	case opMul:
		return p.args[0].eval(v) * p.args[1].eval(v)
	case opLog:
		a := p.args[0].eval(v)
		if a < 0 || math.Abs(a) < 1e-6 {
			return 1
		}
		return math.Log(a)
	case opSqrt:
		a := p.args[0].eval(v)
		if a < 0 {
			return 1
		}
		return math.Sqrt(a)
	}
	return math.NaN()
}

func (p *program) height() int {
	h := 0
	for _, a := range p.args {
		h = max(h, a.height()+1)
	}
	return h
}

func (p *program) size() int {
	n := 1
	for _, a := range p.args {
		n += a.size()
	}
	return n
}

func (p *program) clone() *program {
	c := &program{op: p.op, value: p.value}
	if len(p.args) > 0 {
		c.args = make([]*program, len(p.args))
		for i, a := range p.args {
			c.args[i] = a.clone()
		}
	}
	return c
}

// nodes lists p's subtrees in pre-order; index 0 is p itself.
func (p *program) nodes() []*program {
	out := []*program{p}
	for _, a := range p.args {
		out = append(out, a.nodes()...)
	}
	return out
}

func (p *program) expr() algebra.Expr {
	switch p.op {
	case opVar:
		return varX
	case opConst:
		return algebra.Num(p.value)
	case opAdd:
		return algebra.Add(p.args[0].expr(), p.args[1].expr())
	case opMul:
		return algebra.Mul(p.args[0].expr(), p.args[1].expr())
	case opLog:
		return algebra.Log(p.args[0].expr())
	case opSqrt:
		return algebra.Sqrt(p.args[0].expr())
	}
	return algebra.Expr{}
}

type individual struct {
	prog    *program
	fitness float64
}

// search holds the state of one genetic run.
type search struct {
	cfg    Config
	rng    *rand.Rand
	xs, ys []float64
}

// evolve runs the genetic search and returns the best program as an
// expression if it reproduces the samples.
func (s *Solver) evolve(ctx context.Context, xs, ys []float64) (algebra.Expr, error) {
	g := &search{
		cfg: s.cfg,
		rng: newRand(s.cfg.Seed),
		xs:  xs,
		ys:  ys,
	}

	pop := make([]individual, s.cfg.Population)
	for i := range pop {
		pop[i] = g.individual(g.generate(1, 2, false))
	}
	best := bestOf(pop)

	for gen := 0; gen < s.cfg.Generations && best.fitness > 0; gen++ {
		if err := ctx.Err(); err != nil {
			return algebra.Expr{}, fmt.Errorf("%w: %v", ErrNoConvergence, err)
		}
		pop = g.step(pop)
		if b := bestOf(pop); b.fitness < best.fitness {
			best = individual{prog: b.prog.clone(), fitness: b.fitness}
		}
	}

	e := algebra.Simplify(best.prog.expr())
	if !reproduces(e, xs, ys, s.cfg.Tolerance) {
		return algebra.Expr{}, fmt.Errorf("%w: best candidate %s has mean error %g",
			ErrNoConvergence, e, best.fitness)
	}
	return e, nil
}

// step produces the next generation: selection, one-point crossover on
// consecutive pairs, then mutation.
func (g *search) step(pop []individual) []individual {
	next := make([]*program, len(pop))
	for i := range next {
		next[i] = g.selectOne(pop).prog.clone()
	}
	for i := 1; i < len(next); i += 2 {
		if g.rng.Float64() < crossoverProb {
			next[i-1], next[i] = g.crossover(next[i-1], next[i])
		}
	}
	for i := range next {
		if g.rng.Float64() < mutationProb {
			next[i] = g.mutate(next[i])
		}
	}

	out := make([]individual, len(next))
	for i, p := range next {
		out[i] = g.individual(p)
	}
	return out
}

func (g *search) individual(p *program) individual {
	return individual{prog: p, fitness: g.fitness(p)}
}

// fitness is the mean absolute error; non-finite results rank last.
func (g *search) fitness(p *program) float64 {
	total := 0.0
	for i, x := range g.xs {
		v := p.eval(x)
		if !finite(v) {
			return math.Inf(1)
		}
		total += math.Abs(g.ys[i] - v)
	}
	return total / float64(len(g.xs))
}

// generate builds a random program with height in [minH, maxH]. With full
// set every branch reaches the chosen height; otherwise branches may stop
// early.
func (g *search) generate(minH, maxH int, full bool) *program {
	height := minH + g.rng.IntN(maxH-minH+1)
	return g.grow(0, minH, height, full)
}

func (g *search) grow(depth, minH, height int, full bool) *program {
	// Two terminals against four primitives.
	terminal := depth >= height || (!full && depth >= minH && g.rng.Float64() < 1.0/3)
	if terminal {
		if g.rng.IntN(2) == 0 {
			return &program{op: opVar}
		}
		return &program{op: opConst, value: float64(constMin + g.rng.IntN(constMax-constMin+1))}
	}
	op := primitives[g.rng.IntN(len(primitives))]
	p := &program{op: op, args: make([]*program, op.arity())}
	for i := range p.args {
		p.args[i] = g.grow(depth+1, minH, height, full)
	}
	return p
}

// selectOne is a double tournament: two fitness tournaments, then the
// smaller winner is preferred with probability parsimony/2.
func (g *search) selectOne(pop []individual) individual {
	a, b := g.tournament(pop), g.tournament(pop)
	sa, sb := a.prog.size(), b.prog.size()
	if sa > sb {
		a, b = b, a
	}
	prob := parsimony / 2
	if sa == sb {
		prob = 0.5
	}
	if g.rng.Float64() < prob {
		return a
	}
	return b
}

func (g *search) tournament(pop []individual) individual {
	best := pop[g.rng.IntN(len(pop))]
	for i := 1; i < tournamentK; i++ {
		if c := pop[g.rng.IntN(len(pop))]; c.fitness < best.fitness {
			best = c
		}
	}
	return best
}

// crossover swaps a random subtree of a with one of b. Children above the
// height limit are replaced by their parent.
func (g *search) crossover(a, b *program) (*program, *program) {
	ca, cb := a.clone(), b.clone()
	na, nb := ca.nodes(), cb.nodes()
	if len(na) < 2 || len(nb) < 2 {
		return a, b
	}
	sa := na[1+g.rng.IntN(len(na)-1)]
	sb := nb[1+g.rng.IntN(len(nb)-1)]
	*sa, *sb = *sb, *sa
	return g.limit(ca, a), g.limit(cb, b)
}

// mutate replaces a random subtree with a fresh one, or shrinks a random
// primitive to one of its arguments, with equal probability.
func (g *search) mutate(p *program) *program {
	c := p.clone()
	if g.rng.IntN(2) == 0 {
		n := c.nodes()
		target := n[g.rng.IntN(len(n))]
		*target = *g.generate(0, 1, true)
		return g.limit(c, p)
	}

	var prims []*program
	for _, n := range c.nodes()[1:] {
		if len(n.args) > 0 {
			prims = append(prims, n)
		}
	}
	if len(prims) == 0 {
		return p
	}
	target := prims[g.rng.IntN(len(prims))]
	*target = *target.args[g.rng.IntN(len(target.args))]
	return c
}

func (g *search) limit(child, parent *program) *program {
	if child.height() > g.cfg.MaxDepth {
		return parent
	}
	return child
}

// newRand returns the search's random source. Each run reseeds, so results
// do not depend on earlier calls.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func bestOf(pop []individual) individual {
	best := pop[0]
	for _, ind := range pop[1:] {
		if ind.fitness < best.fitness {
			best = ind
		}
	}
	return best
}
