package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"eval-orchestrator/internal/infra/logger"
	"eval-orchestrator/internal/usecase"

	"github.com/google/uuid"
)

const drainTimeout = 30 * time.Second

// RunWorker owns the background execution of evaluation runs: one
// goroutine per run, each with its own context. Stopping the process
// abandons in-flight runs; an operator treats those as failed.
type RunWorker struct {
	runner *usecase.RunEvaluationUsecase
	logger *slog.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	stopped bool
}

func NewRunWorker(runner *usecase.RunEvaluationUsecase, log *slog.Logger) *RunWorker {
	return &RunWorker{runner: runner, logger: log}
}

// StartRun launches the run's execution in the background and returns
// immediately. Returns false after Stop.
func (w *RunWorker) StartRun(runID uuid.UUID) bool {
	return w.launch(runID, "run", func(ctx context.Context) error {
		return w.runner.Execute(ctx, runID)
	})
}

// StartJudgmentPass launches a post-completion judging pass in the
// background.
func (w *RunWorker) StartJudgmentPass(runID uuid.UUID) bool {
	return w.launch(runID, "judgment_pass", func(ctx context.Context) error {
		return w.runner.RunJudgmentPass(ctx, runID)
	})
}

func (w *RunWorker) launch(runID uuid.UUID, kind string, fn func(ctx context.Context) error) bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return false
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		ctx := logger.WithRunID(context.Background(), runID.String())
		log := logger.FromContext(ctx, w.logger)
		log.Info("worker_task_started", slog.String("kind", kind))
		if err := fn(ctx); err != nil {
			// Execute and RunJudgmentPass record failures on the run
			// themselves; this is the last-resort trace.
			log.Error("worker_task_failed",
				slog.String("kind", kind),
				slog.String("error", err.Error()))
			return
		}
		log.Info("worker_task_finished", slog.String("kind", kind))
	}()
	return true
}

// Stop refuses new tasks and waits for in-flight runs up to a drain
// timeout.
func (w *RunWorker) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.logger.Info("worker_drained")
	case <-time.After(drainTimeout):
		w.logger.Warn("worker_drain_timeout", slog.Duration("waited", drainTimeout))
	}
}
