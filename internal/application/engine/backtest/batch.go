package backtest

// batch.go: worker pool para correr backtests independientes en paralelo.
//
// Cada job tiene su propia sesión (ventana, martingala, ledger); los workers
// no comparten estado mutable.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

// Job is one backtest to run.
type Job struct {
	Name      string
	Ticks     []domain.Tick
	Config    domain.SessionConfig
	Predictor domain.Predictor
}

// JobResult pairs a job with its outcome.
type JobResult struct {
	Name   string
	Result domain.BacktestResult
	Err    error
}

// RunBatch runs jobs on a worker pool and returns results in job order.
// Si workers <= 0 usa runtime.NumCPU().
func RunBatch(ctx context.Context, jobs []Job, workers int) []JobResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	results := make([]JobResult, len(jobs))
	workCh := make(chan int, len(jobs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				job := jobs[i]
				res, err := Run(ctx, job.Ticks, job.Config, job.Predictor)
				if err != nil {
					slog.Warn("backtest job failed", "job", job.Name, "err", err)
				}
				// cada worker escribe en su propio índice
				results[i] = JobResult{Name: job.Name, Result: res, Err: err}
			}
		}()
	}

	for i := range jobs {
		workCh <- i
	}
	close(workCh)
	wg.Wait()

	return results
}
