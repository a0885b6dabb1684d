package task

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner is anything the scheduler can execute.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler runs batches of deferred work with bounded parallelism.
type Scheduler struct {
	workers int
	logger  *zap.Logger
}

func NewScheduler(workers int, logger *zap.Logger) *Scheduler {
	// Worker pool size configured via env (defaults to 1)
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		workers: workers,
		logger:  logger,
	}
}

func (s *Scheduler) Workers() int {
	return s.workers
}

// RunAll runs every runner and waits for them. The first failure cancels the
// context handed to the runners still pending and is returned.
func (s *Scheduler) RunAll(ctx context.Context, runners []Runner) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, r := range runners {
		if r == nil {
			continue
		}
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Debug("Task batch failed", zap.Int("tasks", len(runners)), zap.Error(err))
		return err
	}
	return nil
}
