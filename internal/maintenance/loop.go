// Package maintenance runs the periodic housekeeping of the gateway:
// stale presence sweep, offline queue expiry and rate limiter cleanup.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/sevans717/aphila-sub004/internal/metrics"
)

// Task is one unit of housekeeping.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Loop runs its tasks every interval. A failing or panicking task never
// stops the others or the loop.
type Loop struct {
	interval time.Duration
	clock    clock.Clock
	tasks    []Task
}

func New(interval time.Duration, clk clock.Clock, tasks ...Task) *Loop {
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{interval: interval, clock: clk, tasks: tasks}
}

// Run blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := l.clock.Ticker(l.interval)
	defer ticker.Stop()
	log.Info().Dur("interval", l.interval).Int("tasks", len(l.tasks)).Msg("maintenance: started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("maintenance: stopped")
			return
		case <-ticker.C:
			if err := l.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("maintenance: pass finished with errors")
			}
		}
	}
}

// RunOnce runs every task once and returns their combined errors.
func (l *Loop) RunOnce(ctx context.Context) error {
	var errs error
	for _, t := range l.tasks {
		if err := runTask(ctx, t); err != nil {
			metrics.MaintenanceFailures.WithLabelValues(t.Name).Inc()
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func runTask(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", t.Name, r)
		}
	}()
	if err := t.Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", t.Name, err)
	}
	return nil
}
