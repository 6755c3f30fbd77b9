// Package formulation turns a model.Problem into a mixed-integer program: it
// declares the decision variables, emits every constraint family and
// assembles the objective into a mip.Builder.
package formulation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/core/model"
)

// Options tune model generation.
type Options struct {
	// Parallel generates the constraint families concurrently. Rows are still
	// appended to the builder in family order.
	Parallel bool
}

// Build declares the variables of p in b and appends every constraint family.
// On error nothing usable is left in b and the caller must discard it.
func Build(ctx context.Context, p *model.Problem, b mip.Builder, opts Options) (*Vars, error) {
	if p == nil {
		return nil, &model.ConfigError{Table: "problem", Reason: "nil problem"}
	}
	vars, err := Declare(p, b)
	if err != nil {
		return nil, err
	}
	bufs, err := generate(ctx, p, vars, opts.Parallel)
	if err != nil {
		return nil, err
	}
	for i, buf := range bufs {
		for _, r := range buf.rows {
			if _, err := b.AddConstraint(r.expr, r.rel, r.rhs, r.name); err != nil {
				return nil, fmt.Errorf("family %s: %w", families[i].name, err)
			}
		}
	}
	return vars, nil
}

func generate(ctx context.Context, p *model.Problem, vars *Vars, parallel bool) ([]*buffer, error) {
	bufs := make([]*buffer, len(families))
	run := func(i int) error {
		f := families[i]
		r := &resolver{vars: vars, family: f.name}
		out := &buffer{}
		if err := f.gen(p, r, out); err != nil {
			return err
		}
		if r.err != nil {
			return r.err
		}
		bufs[i] = out
		return nil
	}
	if !parallel {
		for i := range families {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := run(i); err != nil {
				return nil, err
			}
		}
		return bufs, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := range families {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return run(i)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bufs, nil
}
