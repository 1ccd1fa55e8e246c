package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type jobFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (j jobFunc) Name() string                  { return j.name }
func (j jobFunc) Run(ctx context.Context) error { return j.fn(ctx) }

// JobFunc adapts a plain function to Job.
func JobFunc(name string, fn func(ctx context.Context) error) Job {
	return jobFunc{name: name, fn: fn}
}

type entry struct {
	job      Job
	interval time.Duration
}

type Scheduler struct {
	entries    []entry
	runTimeout time.Duration
	logger     zerolog.Logger
}

func NewScheduler(runTimeout time.Duration, logger zerolog.Logger) *Scheduler {
	if runTimeout <= 0 {
		runTimeout = 5 * time.Minute
	}
	return &Scheduler{
		runTimeout: runTimeout,
		logger:     logger.With().Str("component", "scheduler").Logger(),
	}
}

// Every registers job to run at interval. Must be called before Start.
func (s *Scheduler) Every(interval time.Duration, job Job) *Scheduler {
	s.entries = append(s.entries, entry{job: job, interval: interval})
	return s
}

// Start runs every registered job once immediately and then on its own ticker
// until ctx is cancelled. Runs of the same job never overlap.
func (s *Scheduler) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, e := range s.entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, e)
		}()
	}

	s.logger.Info().Int("jobs", len(s.entries)).Msg("scheduler started")
	wg.Wait()
	s.logger.Info().Msg("scheduler stopped")

	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	logger := s.logger.With().Str("job", e.job.Name()).Dur("interval", e.interval).Logger()
	logger.Debug().Msg("job registered")

	s.run(ctx, e.job, logger)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, e.job, logger)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, job Job, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(runCtx); err != nil {
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		return
	}
	logger.Debug().Dur("duration", time.Since(start)).Msg("job finished")
}
