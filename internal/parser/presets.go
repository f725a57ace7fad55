package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gpib-manager/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// PresetFile is the YAML layout of a preset file. Groups expand into one
// pulse per trigger delay on top of a shared base configuration.
type PresetFile struct {
	Pulses []models.PulseConfig `yaml:"pulses"`
	Groups []PresetGroup        `yaml:"groups"`
}

// PresetGroup is a family of pulses differing only in trigger delay.
type PresetGroup struct {
	Name          string             `yaml:"name"`
	Base          models.PulseConfig `yaml:"base"`
	TriggerDelays []float64          `yaml:"trigger_delays_s"`
}

// Expand returns one pulse per trigger delay, named "<group> (delay Ns)".
func (g PresetGroup) Expand() []models.PulseConfig {
	pulses := make([]models.PulseConfig, 0, len(g.TriggerDelays))
	for _, d := range g.TriggerDelays {
		p := g.Base
		p.TriggerDelayS = d
		p.Name = fmt.Sprintf("%s (delay %ss)", g.Name, FormatFloat(d))
		pulses = append(pulses, p)
	}
	return pulses
}

// PresetParser reads YAML preset files.
type PresetParser struct{}

func NewPresetParser() *PresetParser {
	return &PresetParser{}
}

func (p *PresetParser) Name() string {
	return "presets_yaml"
}

func (p *PresetParser) CanParse(filePath string) (bool, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		return true, nil
	}
	return false, nil
}

func (p *PresetParser) Parse(filePath string) ([]models.PulseConfig, []*models.ParseError, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return ParsePresetsFromReader(file)
}

// ParsePresetsFromReader parses a YAML preset file. Invalid entries are
// skipped and reported with their position in the expanded list.
func ParsePresetsFromReader(r io.Reader) ([]models.PulseConfig, []*models.ParseError, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}

	var file PresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, err
	}

	all := append([]models.PulseConfig{}, file.Pulses...)
	for _, g := range file.Groups {
		all = append(all, g.Expand()...)
	}

	pulses := make([]models.PulseConfig, 0, len(all))
	warnings := make([]*models.ParseError, 0)
	for i, p := range all {
		if err := p.Validate(); err != nil {
			warnings = append(warnings, &models.ParseError{Line: i + 1, Content: p.Name, Reason: err.Error()})
			continue
		}
		pulses = append(pulses, p)
	}
	if len(pulses) == 0 {
		return nil, warnings, ErrNoPulses
	}
	return pulses, warnings, nil
}

// ISO 7637-2 test pulse bases.
var (
	iso7637Pulse1 = models.PulseConfig{FrequencyHz: 2.5, AmplitudeVpp: 5.0, OffsetV: 2.5, DutyCycle: 50}
	iso7637Pulse2 = models.PulseConfig{FrequencyHz: 1000, AmplitudeVpp: 5.0, OffsetV: 2.5, DutyCycle: 50}

	iso7637Pulse1Delays = []float64{1.0, 0.5, 0.333}
	iso7637Pulse2Delays = []float64{5.0, 1.0, 0.333}
)

// BuiltinPresets returns the ISO 7637-2 Pulse 1 and Pulse 2a configurations.
func BuiltinPresets() []models.PulseConfig {
	pulses := make([]models.PulseConfig, 0, len(iso7637Pulse1Delays)+len(iso7637Pulse2Delays))
	for _, d := range iso7637Pulse1Delays {
		p := iso7637Pulse1
		p.TriggerDelayS = d
		period := 1 / d
		p.Name = fmt.Sprintf("ISO7637-2 Pulse 1 (Freq 2.5Hz, Delay %.0fs, ~%d pulses)", period, int(5000/period))
		pulses = append(pulses, p)
	}
	for _, d := range iso7637Pulse2Delays {
		p := iso7637Pulse2
		p.TriggerDelayS = d
		p.Name = fmt.Sprintf("ISO7637-2 Pulse 2a (Freq 1kHz, Delay %ss)", FormatFloat(d))
		pulses = append(pulses, p)
	}
	return pulses
}

// BuiltinPresetFile returns the built-in presets in PresetFile form.
func BuiltinPresetFile() PresetFile {
	return PresetFile{
		Groups: []PresetGroup{
			{Name: "ISO7637-2 Pulse 1", Base: iso7637Pulse1, TriggerDelays: iso7637Pulse1Delays},
			{Name: "ISO7637-2 Pulse 2a", Base: iso7637Pulse2, TriggerDelays: iso7637Pulse2Delays},
		},
	}
}

// FindPulse returns the pulse named name (case-insensitive).
func FindPulse(pulses []models.PulseConfig, name string) (models.PulseConfig, bool) {
	for _, p := range pulses {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true
		}
	}
	return models.PulseConfig{}, false
}
