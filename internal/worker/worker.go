// Package worker runs periodic background tasks on a ticker with a
// consecutive-failure circuit breaker. The queue processor and the
// reservation reaper both run under it; tests drive ticks with short
// intervals and context timeouts instead of wall-clock waits.
package worker

import (
	"context"
	"log"
	"time"
)

// Runner executes Task every Interval until the context ends. After
// MaxFailures consecutive failed ticks the runner pauses for Cooldown
// instead of hammering a degraded dependency, then tries again.
type Runner struct {
	Name        string
	Interval    time.Duration
	MaxFailures int
	Cooldown    time.Duration
	Task        func(ctx context.Context) error

	failures int
	pausedTo time.Time
	now      func() time.Time
}

// Start blocks, ticking until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	if r.Task == nil {
		panic("worker.Runner started without a task")
	}
	if r.now == nil {
		r.now = time.Now
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	log.Printf("%s: started (interval=%s)", r.Name, r.Interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("%s: stopped", r.Name)
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if r.breakerOpen() {
		return
	}
	if err := r.Task(ctx); err != nil {
		r.failures++
		log.Printf("%s: tick failed (%d consecutive): %v", r.Name, r.failures, err)
		if r.MaxFailures > 0 && r.failures >= r.MaxFailures {
			r.pausedTo = r.now().Add(r.Cooldown)
			r.failures = 0
			log.Printf("%s: circuit breaker open, pausing until %s", r.Name, r.pausedTo.Format(time.RFC3339))
		}
		return
	}
	r.failures = 0
}

func (r *Runner) breakerOpen() bool {
	if r.pausedTo.IsZero() {
		return false
	}
	if r.now().Before(r.pausedTo) {
		return true
	}
	r.pausedTo = time.Time{}
	return false
}
