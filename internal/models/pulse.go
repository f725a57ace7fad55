package models

import (
	"fmt"
	"math"
)

// PulseConfig describes one square-wave pulse setup for the signal generator.
type PulseConfig struct {
	Name          string  `json:"name" yaml:"name"`
	FrequencyHz   float64 `json:"frequencyHz" yaml:"frequency_hz"`
	AmplitudeVpp  float64 `json:"amplitudeVpp" yaml:"amplitude_vpp"`
	OffsetV       float64 `json:"offsetV" yaml:"offset_v"`
	DutyCycle     float64 `json:"dutyCycle" yaml:"duty_cycle"`
	TriggerDelayS float64 `json:"triggerDelayS" yaml:"trigger_delay_s"`
}

// DefaultPulse is used by the CLI when no pulse table can be read.
func DefaultPulse() PulseConfig {
	return PulseConfig{
		Name:          "default",
		FrequencyHz:   1.0,
		AmplitudeVpp:  1.0,
		OffsetV:       0.0,
		DutyCycle:     50.0,
		TriggerDelayS: 2.0,
	}
}

// Validate checks the physical plausibility of the configuration.
func (p PulseConfig) Validate() error {
	for _, v := range []float64{p.FrequencyHz, p.AmplitudeVpp, p.OffsetV, p.DutyCycle, p.TriggerDelayS} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("values must be finite, got %g", v)
		}
	}
	if p.FrequencyHz <= 0 {
		return fmt.Errorf("frequency must be positive, got %g", p.FrequencyHz)
	}
	if p.AmplitudeVpp <= 0 {
		return fmt.Errorf("amplitude must be positive, got %g", p.AmplitudeVpp)
	}
	if p.DutyCycle <= 0 || p.DutyCycle >= 100 {
		return fmt.Errorf("duty cycle must be between 0 and 100, got %g", p.DutyCycle)
	}
	if p.TriggerDelayS <= 0 {
		return fmt.Errorf("trigger delay must be positive, got %g", p.TriggerDelayS)
	}
	return nil
}

func (p PulseConfig) String() string {
	return fmt.Sprintf("%s (%.2f Hz, %.2f Vpp, %.2f V offset, %.2f%% duty, %gs delay)",
		p.Name, p.FrequencyHz, p.AmplitudeVpp, p.OffsetV, p.DutyCycle, p.TriggerDelayS)
}

// ParseError represents a row of a pulse table that could not be used.
type ParseError struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

func (e ParseError) String() string {
	return fmt.Sprintf("line %d: %s (%q)", e.Line, e.Reason, e.Content)
}
