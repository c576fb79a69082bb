// Package optim searches scene configuration space for the settings that
// minimise a run metric.
package optim

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/experiment"
	"github.com/san-kum/ipcsim/internal/sim"
	"github.com/san-kum/ipcsim/internal/world"
)

// RunFunc simulates one point of the grid, given as config key overrides.
type RunFunc func(ctx context.Context, params map[string]float64) (*sim.Result, error)

// Trial is the outcome of one grid point. Err is set when the run failed;
// such trials never win.
type Trial struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	keys   []string
	ranges [][]float64
}

// NewGridSearch takes one value list per config key; keys are searched in
// sorted order.
func NewGridSearch(grid map[string][]float64) (*GridSearch, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("empty grid: %w", dynamo.ErrInvalidConfig)
	}
	g := &GridSearch{}
	for k := range grid {
		g.keys = append(g.keys, k)
	}
	sort.Strings(g.keys)
	for _, k := range g.keys {
		if len(grid[k]) == 0 {
			return nil, fmt.Errorf("no values for %s: %w", k, dynamo.ErrInvalidConfig)
		}
		g.ranges = append(g.ranges, grid[k])
	}
	return g, nil
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search runs every grid point and returns the trial with the smallest
// metric, along with all trials in grid order. It fails only when no
// point produced the metric or ctx was cancelled.
func (g *GridSearch) Search(ctx context.Context, run RunFunc, metricName string) (Trial, []Trial, error) {
	best := Trial{Value: math.Inf(1)}
	trials := make([]Trial, 0, g.Size())

	idx := make([]int, len(g.keys))
	for {
		if err := ctx.Err(); err != nil {
			return best, trials, err
		}
		params := make(map[string]float64, len(g.keys))
		for i, k := range g.keys {
			params[k] = g.ranges[i][idx[i]]
		}

		trial := Trial{Params: params, Value: math.NaN()}
		result, err := run(ctx, params)
		switch {
		case err != nil:
			trial.Err = err
		default:
			v, ok := result.Metrics[metricName]
			if !ok {
				trial.Err = fmt.Errorf("metric %q: %w", metricName, dynamo.ErrNotFound)
			} else {
				trial.Value = v
			}
		}
		trials = append(trials, trial)
		if trial.Err == nil && trial.Value < best.Value {
			best = trial
		}

		if !g.next(idx) {
			break
		}
	}

	if best.Params == nil {
		return best, trials, fmt.Errorf("no grid point produced %q: %w", metricName, dynamo.ErrNotFound)
	}
	return best, trials, nil
}

// next advances idx like an odometer, last key fastest.
func (g *GridSearch) next(idx []int) bool {
	for i := len(idx) - 1; i >= 0; i-- {
		idx[i]++
		if idx[i] < len(g.ranges[i]) {
			return true
		}
		idx[i] = 0
	}
	return false
}

// PresetRunner runs a registered preset for frames frames (zero for the
// preset's own count) with the grid point applied as overrides.
func PresetRunner(registry *experiment.Registry, engine *world.Engine, preset string, frames int) RunFunc {
	return func(ctx context.Context, params map[string]float64) (*sim.Result, error) {
		overrides := make(map[string]string, len(params))
		for k, v := range params {
			overrides[k] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		exp := experiment.New(experiment.Config{Preset: preset, Frames: frames, Overrides: overrides}, registry)
		if err := exp.Setup(engine); err != nil {
			return nil, err
		}
		defer exp.Close()
		return exp.Run(ctx)
	}
}
