package sim

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Factory builds the i-th independent simulator of an ensemble.
type Factory func(i int) (*Simulator, error)

// Ensemble runs independent simulators concurrently, each on its own
// world.
type Ensemble struct {
	factory  Factory
	numRuns  int
	parallel int
}

func NewEnsemble(factory Factory, numRuns int) *Ensemble {
	return &Ensemble{factory: factory, numRuns: numRuns, parallel: runtime.GOMAXPROCS(0)}
}

// SetParallelism bounds how many runs execute at once.
func (e *Ensemble) SetParallelism(n int) {
	if n > 0 {
		e.parallel = n
	}
}

// Run returns one result per run, in run order. The first failing run
// cancels the others.
func (e *Ensemble) Run(ctx context.Context, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.numRuns)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for i := 0; i < e.numRuns; i++ {
		i := i
		g.Go(func() error {
			s, err := e.factory(i)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Run(ctx, cfg)
			results[i] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
