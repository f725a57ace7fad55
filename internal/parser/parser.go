// Package parser loads pulse configurations from tables and preset files.
package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gpib-manager/backend/internal/models"
)

// ErrNoPulses is returned when a source yields no usable pulse configuration.
var ErrNoPulses = errors.New("no valid pulse configurations")

// Parser defines the interface for pulse configuration sources.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// CanParse returns true if this parser can handle the given file.
	CanParse(filePath string) (bool, error)
	// Parse returns the usable pulses and a warning for every skipped row.
	Parse(filePath string) ([]models.PulseConfig, []*models.ParseError, error)
}

// Column names of a pulse table, in their canonical order.
var Columns = []string{
	"pulse_name",
	"frequency_hz",
	"amplitude_vpp",
	"offset_v",
	"duty_cycle",
	"trigger_delay_s",
}

// parseNumber accepts plain and exponent notation ("2.5", "1E3"). NaN and
// infinities are rejected.
func parseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite number %q", raw)
	}
	return v, nil
}

// FormatFloat renders v the way the tables are written: integral values keep
// one decimal ("5.0"), others use the shortest exact form ("0.333").
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
