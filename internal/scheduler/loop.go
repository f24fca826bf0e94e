package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Loop drives the controller continuously: it schedules the next cycle
// only after the current one has returned, so cycles never overlap.
// Cancelling the context stops the loop cleanly between cycles.
type Loop struct {
	controller *Controller
	delay      time.Duration
	log        *zap.Logger
}

func NewLoop(controller *Controller, delay time.Duration, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	if delay <= 0 {
		delay = time.Minute
	}
	return &Loop{controller: controller, delay: delay, log: log}
}

// Run blocks until ctx is cancelled. A failed cycle is logged and the
// loop waits for the next natural tick; it never retries early.
func (l *Loop) Run(ctx context.Context, tokens []string, interval time.Duration) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			l.log.Info("loop stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := l.controller.RunCycle(ctx, tokens, interval); err != nil {
			l.log.Error("cycle failed", zap.Error(err))
		}

		timer.Reset(l.delay)
	}
}
