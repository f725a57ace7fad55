// Package sequence drives the signal generator through fixed SCPI
// configuration scripts.
package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gotmc/query"
	"github.com/gpib-manager/backend/internal/models"
	"github.com/gpib-manager/backend/internal/parser"
)

// DefaultSettleDelay is how long the generator needs after *RST.
const DefaultSettleDelay = 100 * time.Millisecond

// SCPI commands of the supported function generators.
const (
	CmdReset           = "*RST"
	CmdClearStatus     = "*CLS"
	CmdIdentify        = "*IDN?"
	CmdOutputOn        = ":OUTPut:STATe ON"
	CmdTriggerInternal = ":TRIGger:SOURce INTernal"
	CmdContinuousOff   = ":INITiate:CONTinuous OFF"
)

// Instrument is the command surface the runner drives.
type Instrument interface {
	Write(cmd string) error
	Query(cmd string) (string, error)
}

// Session is an Instrument whose connection the runner may open and close.
type Session interface {
	Instrument
	Connect(address string) (string, error)
	Disconnect() error
}

// Runner issues configuration scripts against a session.
type Runner struct {
	session Session
	settle  time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	logf    func(format string, args ...any)
}

// Option configures a Runner.
type Option func(*Runner)

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(r *Runner) { r.settle = d }
}

// WithSleep replaces the context-aware sleep used for settle and hold delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = sleep }
}

// WithLogf sets the progress logger.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(r *Runner) { r.logf = logf }
}

// NewRunner creates a runner over session.
func NewRunner(session Session, opts ...Option) *Runner {
	r := &Runner{
		session: session,
		settle:  DefaultSettleDelay,
		sleep:   sleepContext,
		logf: func(format string, args ...any) {
			fmt.Printf(format+"\n", args...)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ClearStatus clears the status byte and error queue.
func (r *Runner) ClearStatus() error {
	return r.session.Write(CmdClearStatus)
}

// Identify queries *IDN? and splits the reply into its four fields when present.
func (r *Runner) Identify() (models.InstrumentInfo, error) {
	raw, err := query.String(r.session, CmdIdentify)
	if err != nil {
		return models.InstrumentInfo{}, err
	}
	raw = strings.TrimSpace(raw)
	info := models.InstrumentInfo{Raw: raw}
	if parts := strings.Split(raw, ","); len(parts) == 4 {
		info.Manufacturer = strings.TrimSpace(parts[0])
		info.Model = strings.TrimSpace(parts[1])
		info.Serial = strings.TrimSpace(parts[2])
		info.Version = strings.TrimSpace(parts[3])
	}
	return info, nil
}

// ApplySquareWave resets the generator, waits for the reset to settle and
// then sets a square wave with the given duty cycle and turns the output on.
// The write order matters to the hardware.
func (r *Runner) ApplySquareWave(ctx context.Context, freqHz, amplVpp, offsetV, dutyCycle float64) error {
	if err := r.session.Write(CmdReset); err != nil {
		return err
	}
	if err := r.sleep(ctx, r.settle); err != nil {
		return err
	}
	cmds := []string{
		fmt.Sprintf(":SOURce:APPLy:SQUare %.2E, %.2f, %.2f", freqHz, amplVpp, offsetV),
		fmt.Sprintf(":SOURce:FUNCtion:SQUare:DCYCle %.2f", dutyCycle),
		CmdOutputOn,
	}
	for _, cmd := range cmds {
		if err := r.session.Write(cmd); err != nil {
			return err
		}
	}
	r.logf("Applied Square Wave: Freq=%.2f Hz, Ampl=%.2f Vpp, Duty=%.2f%%", freqHz, amplVpp, dutyCycle)
	return nil
}

// SetTriggerInternal selects the internal trigger with continuous initiation off.
func (r *Runner) SetTriggerInternal() error {
	if err := r.session.Write(CmdTriggerInternal); err != nil {
		return err
	}
	return r.session.Write(CmdContinuousOff)
}

// SetTriggerTimer sets the internal trigger period in seconds.
func (r *Runner) SetTriggerTimer(delayS float64) error {
	return r.session.Write(":TRIGger:TIMer " + parser.FormatFloat(delayS))
}

// Apply configures an already connected generator for cfg.
func (r *Runner) Apply(ctx context.Context, cfg models.PulseConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("pulse %q: %w", cfg.Name, err)
	}
	return runSteps(ctx, r.configureSteps(cfg), nil)
}

func (r *Runner) configureSteps(cfg models.PulseConfig) []Step {
	return []Step{
		{Name: "clear-status", Run: func(context.Context) error { return r.ClearStatus() }},
		{Name: "apply-square-wave", Run: func(ctx context.Context) error {
			return r.ApplySquareWave(ctx, cfg.FrequencyHz, cfg.AmplitudeVpp, cfg.OffsetV, cfg.DutyCycle)
		}},
		{Name: "trigger-internal", Run: func(context.Context) error { return r.SetTriggerInternal() }},
		{Name: "trigger-timer", Run: func(context.Context) error { return r.SetTriggerTimer(cfg.TriggerDelayS) }},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
