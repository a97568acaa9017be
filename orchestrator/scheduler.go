package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CycleRunner runs a single cycle
type CycleRunner interface {
	Run(ctx context.Context) (*Report, error)
}

// Scheduler repeats a cycle forever with a fixed pause between runs
type Scheduler struct {
	Cycle    CycleRunner
	Interval time.Duration
	Logger   *zap.Logger

	// OnCycle, when set, is called after every completed cycle with the time
	// the next one starts.
	OnCycle func(report *Report, next time.Time)
}

// Run executes cycles until ctx is cancelled or a cycle fails fatally. The
// context is only consulted while waiting between cycles; a cycle in flight
// always runs to completion.
func (s *Scheduler) Run(ctx context.Context) error {
	cycleCtx := context.WithoutCancel(ctx)
	for {
		report, err := s.Cycle.Run(cycleCtx)
		if err != nil {
			return err
		}

		next := time.Now().Add(s.Interval)
		if s.OnCycle != nil {
			s.OnCycle(report, next)
		}
		s.logger().Debug("waiting for next cycle", zap.Duration("interval", s.Interval))

		select {
		case <-ctx.Done():
			s.logger().Info("scheduler stopped")
			return nil
		case <-time.After(s.Interval):
		}
	}
}

// RunOnce executes a single cycle
func (s *Scheduler) RunOnce(ctx context.Context) (*Report, error) {
	report, err := s.Cycle.Run(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	if s.OnCycle != nil {
		s.OnCycle(report, time.Time{})
	}
	return report, nil
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
