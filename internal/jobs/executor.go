package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"ozzus/netcheck-agent/internal/checks"
	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/lib/logger/sl"
)

// Executor turns jobs into probe calls and aggregates their results.
type Executor struct {
	log      *slog.Logger
	checks   checks.Service
	defaults checks.Defaults
}

func NewExecutor(log *slog.Logger, svc checks.Service, defaults checks.Defaults) *Executor {
	return &Executor{
		log:      log.With(slog.String("component", "jobs")),
		checks:   svc,
		defaults: defaults,
	}
}

// Execute runs the job. Validation failures and probe faults are reported in
// the returned result; the error is non-nil only when ctx ends first.
func (e *Executor) Execute(ctx context.Context, job domain.Job) (domain.JobResult, error) {
	const op = "jobs.Execute"
	log := e.log.With(slog.String("op", op), slog.String("job_id", job.ID), slog.String("type", string(job.Type)))

	if err := ctx.Err(); err != nil {
		return domain.JobResult{}, err
	}

	probes, err := e.plan(job)
	if err != nil {
		log.Warn("job rejected", sl.Err(err))
		return domain.FailedJobResult(job.ID, err.Error(), ""), nil
	}

	log.Debug("running checks", slog.Int("checks", len(probes)))

	results, err := e.run(ctx, probes)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.JobResult{}, ctxErr
	}

	var fault *faultError
	if errors.As(err, &fault) {
		log.Error("job execution failed", sl.Err(err))
		return domain.FailedJobResult(job.ID, fault.msg, fault.details), nil
	}
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("%s: %w", op, err)
	}

	return domain.NewJobResult(job.ID, results), nil
}

// run fans probes out concurrently and keeps results in plan order.
func (e *Executor) run(ctx context.Context, probes []probe) ([]domain.CheckResult, error) {
	results := make([]domain.CheckResult, len(probes))
	errs := make([]error, len(probes))

	var wg conc.WaitGroup
	for i, p := range probes {
		i, p := i, p
		wg.Go(func() {
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return
			}
			res, err := p.run(ctx)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", p.name, err)
				return
			}
			results[i] = res
		})
	}

	done := make(chan *panics.Recovered, 1)
	go func() {
		done <- wg.WaitAndRecover()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case recovered := <-done:
		if recovered != nil {
			return nil, &faultError{
				msg:     fmt.Sprintf("panic: %v", recovered.Value),
				details: string(recovered.Stack),
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &faultError{msg: err.Error()}
	}

	return results, nil
}

type faultError struct {
	msg     string
	details string
}

func (e *faultError) Error() string {
	return e.msg
}
