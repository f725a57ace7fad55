package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gpib-manager/backend/internal/models"
	"go.uber.org/multierr"
)

// Step is one named stage of a sequence.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Result describes a finished or aborted sequence run.
type Result struct {
	RunID     string                `json:"runId"`
	Pulse     models.PulseConfig    `json:"pulse"`
	Identity  models.InstrumentInfo `json:"identity"`
	Completed []string              `json:"completed"`
	Duration  time.Duration         `json:"duration"`
}

// RunSequence connects to address, identifies the instrument, configures it
// for cfg, holds the signal for hold and disconnects. Once connected, the
// disconnect runs on every exit path and its error is combined with the
// step error.
func (r *Runner) RunSequence(ctx context.Context, address string, cfg models.PulseConfig, hold time.Duration) (res *Result, err error) {
	start := time.Now()
	res = &Result{RunID: uuid.New().String(), Pulse: cfg}
	tag := res.RunID[:8]
	defer func() { res.Duration = time.Since(start) }()

	if err := cfg.Validate(); err != nil {
		return res, fmt.Errorf("pulse %q: %w", cfg.Name, err)
	}

	r.logf("[Run %s] Connecting to %s", tag, address)
	if _, err := r.session.Connect(address); err != nil {
		return res, fmt.Errorf("connect: %w", err)
	}
	res.Completed = append(res.Completed, "connect")
	defer func() {
		r.logf("[Run %s] Disconnecting", tag)
		err = multierr.Append(err, r.session.Disconnect())
	}()

	steps := []Step{{Name: "identify", Run: func(context.Context) error {
		info, err := r.Identify()
		if err != nil {
			return err
		}
		res.Identity = info
		r.logf("[Run %s] Connected to: %s", tag, info.Raw)
		return nil
	}}}
	steps = append(steps, r.configureSteps(cfg)...)
	steps = append(steps, Step{Name: "hold", Run: func(ctx context.Context) error {
		r.logf("[Run %s] Configuration complete, holding signal for %s", tag, hold)
		return r.sleep(ctx, hold)
	}})

	err = runSteps(ctx, steps, func(name string) {
		res.Completed = append(res.Completed, name)
	})
	return res, err
}

// runSteps runs steps in order and stops at the first failure.
func runSteps(ctx context.Context, steps []Step, done func(name string)) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
		if err := s.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
		if done != nil {
			done(s.Name)
		}
	}
	return nil
}
