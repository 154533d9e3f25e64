// Package runner executes simulation jobs, one at a time or as a worker
// pool over a parameter sweep sharing one loaded dataset.
package runner

import (
	"context"
	"errors"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"backsim/services/engine"
)

// Runner dispatches jobs to a negotiated engine variant.
type Runner struct {
	// EngineName is the requested variant. Empty selects the reference
	// engine.
	EngineName string
	// FallbackToReference reruns a job on the reference engine when the
	// requested variant reports a capability gap. The fallback is logged;
	// it never happens silently.
	FallbackToReference bool
	// Workers bounds the pool for RunAll. 0 means GOMAXPROCS.
	Workers int

	Log *zap.Logger
}

func (r Runner) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

func (r Runner) engineName() string {
	if r.EngineName == "" {
		return engine.ReferenceEngineName
	}
	return r.EngineName
}

// Run executes one job. On a DataError the partial result is returned
// alongside the error.
func (r Runner) Run(ctx context.Context, job engine.Job) (*engine.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if job.Logger == nil {
		job.Logger = r.logger()
	}

	eng, err := engine.Select(r.engineName(), job)
	if err != nil {
		var capErr *engine.EngineCapabilityError
		if !errors.As(err, &capErr) || !r.FallbackToReference {
			return nil, err
		}
		r.logger().Warn("falling back to reference engine",
			zap.String("requested", r.engineName()),
			zap.String("missing_capability", capErr.Capability),
		)
		eng, err = engine.Select(engine.ReferenceEngineName, job)
		if err != nil {
			return nil, err
		}
	}
	return eng.Run(job)
}

// JobResult pairs one sweep job with its outcome. Err is per-job: a
// declined dataset in one sweep cell does not abort the others.
type JobResult struct {
	Index  int
	Result *engine.Result
	Err    error
}

// RunAll executes a parameter sweep over a worker pool. Results arrive in
// job order. Cancelling ctx stops dispatching new jobs; jobs already
// running finish.
func (r Runner) RunAll(ctx context.Context, jobs []engine.Job) []JobResult {
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([]JobResult, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			res, err := r.Run(ctx, job)
			out[i] = JobResult{Index: i, Result: res, Err: err}
			// per-job failures are carried in the slot, not propagated:
			// the rest of the sweep still runs
			return nil
		})
	}
	_ = g.Wait()
	return out
}
