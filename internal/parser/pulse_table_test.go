package parser

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gpib-manager/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePulseTableSkipsMalformedRow(t *testing.T) {
	input := `pulse_name,frequency_hz,amplitude_vpp,offset_v,duty_cycle,trigger_delay_s
slow,2.5,5.0,2.5,50,1.0
broken,abc,5.0,2.5,50,1.0
fast,1000,5.0,2.5,50,0.333
`
	pulses, warnings, err := ParsePulseTable(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, pulses, 2)
	require.Len(t, warnings, 1)
	assert.Equal(t, 3, warnings[0].Line)
	assert.Contains(t, warnings[0].Reason, "frequency_hz")

	assert.Equal(t, models.PulseConfig{
		Name: "slow", FrequencyHz: 2.5, AmplitudeVpp: 5, OffsetV: 2.5, DutyCycle: 50, TriggerDelayS: 1,
	}, pulses[0])
	assert.Equal(t, "fast", pulses[1].Name)
	assert.InDelta(t, 0.333, pulses[1].TriggerDelayS, 1e-9)
}

func TestParsePulseTableSkipsNonFiniteValues(t *testing.T) {
	input := `pulse_name,frequency_hz,amplitude_vpp,offset_v,duty_cycle,trigger_delay_s
bad,NaN,Inf,0,NaN,NaN
offset,10,1,-Inf,50,1
good,10,1,0,50,1
`
	pulses, warnings, err := ParsePulseTable(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, pulses, 1)
	assert.Equal(t, "good", pulses[0].Name)
	require.Len(t, warnings, 2)
	assert.Equal(t, 2, warnings[0].Line)
	assert.Equal(t, 3, warnings[1].Line)
}

func TestParsePulseTableTabSeparated(t *testing.T) {
	input := "pulse_name\tfrequency_hz\tamplitude_vpp\toffset_v\tduty_cycle\ttrigger_delay_s\n" +
		"ISO7637-2 Pulse 1 (Freq 2.5Hz, Delay 1s, ~5000 pulses)\t2.5\t5.0\t2.5\t50\t1.0\n"

	pulses, warnings, err := ParsePulseTable(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, pulses, 1)
	assert.Equal(t, "ISO7637-2 Pulse 1 (Freq 2.5Hz, Delay 1s, ~5000 pulses)", pulses[0].Name)
}

func TestParsePulseTableReorderedHeader(t *testing.T) {
	input := `freq_hz, ampl_vpp, offset_v, duty_cycle, trigger_delay_s, description
1000, 2.0, 0.0, 25, 5.0, "burst, long"
`
	pulses, _, err := ParsePulseTable(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, pulses, 1)
	assert.Equal(t, "burst, long", pulses[0].Name)
	assert.Equal(t, 1000.0, pulses[0].FrequencyHz)
	assert.Equal(t, 25.0, pulses[0].DutyCycle)
}

func TestParsePulseTableLegacyLayout(t *testing.T) {
	input := "# freq, ampl, offset, duty, delay\n1.0,1.0,0.0,50.0,2.0\n\n10,2,0.5,20,1\n"

	pulses, warnings, err := ParsePulseTable(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, pulses, 2)
	assert.Equal(t, "row 2", pulses[0].Name)
	assert.Equal(t, "row 4", pulses[1].Name)
	assert.Equal(t, 10.0, pulses[1].FrequencyHz)
}

func TestParsePulseTableValidation(t *testing.T) {
	input := `pulse_name,frequency_hz,amplitude_vpp,offset_v,duty_cycle,trigger_delay_s
zero-freq,0,5,0,50,1
full-duty,10,5,0,100,1
short,10,5
ok,10,5,-1.5,50,1
`
	pulses, warnings, err := ParsePulseTable(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, pulses, 1)
	assert.Equal(t, -1.5, pulses[0].OffsetV)
	assert.Len(t, warnings, 3)
}

func TestParsePulseTableNoValidRows(t *testing.T) {
	_, warnings, err := ParsePulseTable(strings.NewReader("pulse_name,frequency_hz,amplitude_vpp,offset_v,duty_cycle,trigger_delay_s\nbad,x,y,z,1,2\n"))
	assert.ErrorIs(t, err, ErrNoPulses)
	assert.Len(t, warnings, 1)

	_, _, err = ParsePulseTable(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoPulses)
}

func TestParsePulseTableMissingHeaderColumn(t *testing.T) {
	_, _, err := ParsePulseTable(strings.NewReader("pulse_name,frequency_hz\na,1\n"))
	assert.ErrorContains(t, err, "amplitude_vpp")
}

func TestWritePulseTableRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePulseTable(&buf, BuiltinPresets(), '\t'))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, strings.Join(Columns, "\t"), lines[0])
	assert.Equal(t, "ISO7637-2 Pulse 2a (Freq 1kHz, Delay 5.0s)\t1000.0\t5.0\t2.5\t50.0\t5.0", lines[4])

	pulses, warnings, err := ParsePulseTable(&buf)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, BuiltinPresets(), pulses)
}

func TestLoadPulsesDetectsFormat(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "config.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("1.0,1.0,0.0,50.0,2.0\n"), 0644))
	yamlPath := filepath.Join(dir, "presets.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("pulses:\n  - name: one\n    frequency_hz: 1\n    amplitude_vpp: 1\n    duty_cycle: 50\n    trigger_delay_s: 2\n"), 0644))

	pulses, _, err := LoadPulses(csvPath)
	require.NoError(t, err)
	assert.Len(t, pulses, 1)

	pulses, _, err = LoadPulses(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "one", pulses[0].Name)

	_, _, err = LoadPulses(filepath.Join(dir, "pulses.json"))
	assert.Error(t, err)
}
