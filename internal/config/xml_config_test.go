package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "GPIBWebManager.config")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "sim", cfg.Instrument.Driver)
	assert.Equal(t, "/health", cfg.Security.ExcludedPath)
	assert.Equal(t, filepath.Join(dir, "config.csv"), cfg.Sequence.PulseTable)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoadConfig_ReadsXML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "GPIBWebManager.config")
	content := `<?xml version="1.0" encoding="UTF-8"?>
<GPIBWebManager>
  <Server>
    <Port>8080</Port>
    <BindAddress>0.0.0.0</BindAddress>
  </Server>
  <Instrument>
    <Driver>prologix</Driver>
    <SerialPort>/dev/ttyACM0</SerialPort>
    <TimeoutMs>2500</TimeoutMs>
  </Instrument>
  <Sequence>
    <PulseTable>/abs/pulses.tsv</PulseTable>
    <PresetFile>presets.yaml</PresetFile>
  </Sequence>
  <Security>
    <Password>secret</Password>
  </Security>
</GPIBWebManager>`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddr())
	assert.Equal(t, "prologix", cfg.Instrument.Driver)
	assert.Equal(t, "/dev/ttyACM0", cfg.Instrument.SerialPort)
	assert.Equal(t, 2500*time.Millisecond, cfg.InstrumentTimeout())
	assert.Equal(t, "/abs/pulses.tsv", cfg.Sequence.PulseTable)
	assert.Equal(t, filepath.Join(dir, "presets.yaml"), cfg.Sequence.PresetFile)
	assert.True(t, cfg.AuthEnabled())

	// Sections missing from the file keep their defaults.
	assert.Equal(t, 200, cfg.Session.LogCapacity)
	assert.Equal(t, 2*time.Second, cfg.HoldDuration())
	assert.Equal(t, "GPIB", cfg.Security.Realm)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "GPIBWebManager.config")
	require.NoError(t, DefaultConfig().Save(path))

	t.Setenv("PORT", "9090")
	t.Setenv("GPIB_DRIVER", "prologix-tcp")
	t.Setenv("GPIB_HOST", "10.0.0.5")
	t.Setenv("GPIB_PASSWORD", "hunter2")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "prologix-tcp", cfg.Instrument.Driver)
	assert.Equal(t, "10.0.0.5", cfg.Instrument.Host)
	assert.Equal(t, "hunter2", cfg.Security.Password)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "GPIBWebManager.config")
	require.NoError(t, DefaultConfig().Save(path))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GPIB_PULSE_TABLE=table.tsv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("GPIB_PULSE_TABLE") })

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "table.tsv"), cfg.Sequence.PulseTable)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.config")
	require.NoError(t, os.WriteFile(bad, []byte("<GPIBWebManager><Server>"), 0644))
	_, err := LoadConfig(bad)
	assert.Error(t, err)

	port := filepath.Join(dir, "port.config")
	require.NoError(t, os.WriteFile(port, []byte("<GPIBWebManager><Server><Port>70000</Port></Server></GPIBWebManager>"), 0644))
	_, err = LoadConfig(port)
	assert.ErrorContains(t, err, "invalid server port")
}
