// Package config provides XML-based configuration management for the GPIB web manager.
package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"GPIBWebManager"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Instrument driver configuration
	Instrument InstrumentConfig `xml:"Instrument"`

	// Session buffer sizes
	Session SessionConfig `xml:"Session"`

	// Pulse sequence configuration
	Sequence SequenceConfig `xml:"Sequence"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// InstrumentConfig selects and configures the instrument driver
type InstrumentConfig struct {
	Driver         string `xml:"Driver"` // sim, prologix, prologix-tcp, visa
	DefaultAddress string `xml:"DefaultAddress"`
	SerialPort     string `xml:"SerialPort"`
	BaudRate       int    `xml:"BaudRate"`
	Host           string `xml:"Host"`
	TimeoutMs      int    `xml:"TimeoutMs"`
	Debug          bool   `xml:"Debug"`
}

// SessionConfig contains log and history limits
type SessionConfig struct {
	LogCapacity      int `xml:"LogCapacity"`
	HistoryCapacity  int `xml:"HistoryCapacity"`
	ResponseLogLines int `xml:"ResponseLogLines"`
	StatusLogLines   int `xml:"StatusLogLines"`
	PageHistoryLines int `xml:"PageHistoryLines"`
	PollIntervalMs   int `xml:"PollIntervalMs"`
}

// SequenceConfig contains pulse table and timing settings
type SequenceConfig struct {
	PulseTable    string `xml:"PulseTable"`
	PresetFile    string `xml:"PresetFile"`
	HoldSeconds   int    `xml:"HoldSeconds"`
	SettleDelayMs int    `xml:"SettleDelayMs"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	Password     string `xml:"Password"`
	Realm        string `xml:"Realm"`
	ExcludedPath string `xml:"ExcludedPath"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         5000,
			BindAddress:  "127.0.0.1",
			EnableCORS:   false,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "1M",
		},
		Instrument: InstrumentConfig{
			Driver:         "sim",
			DefaultAddress: "1",
			SerialPort:     "/dev/ttyUSB0",
			BaudRate:       115200,
			TimeoutMs:      5000,
		},
		Session: SessionConfig{
			LogCapacity:      200,
			HistoryCapacity:  50,
			ResponseLogLines: 10,
			StatusLogLines:   50,
			PageHistoryLines: 20,
			PollIntervalMs:   2000,
		},
		Sequence: SequenceConfig{
			PulseTable:    "config.csv",
			HoldSeconds:   2,
			SettleDelayMs: 100,
		},
		Security: SecurityConfig{
			Password:     "",
			Realm:        "GPIB",
			ExcludedPath: "/health",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from XML file. A .env file next to the
// config file, if present, is loaded into the environment first.
func LoadConfig(configPath string) (*AppConfig, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(configPath), ".env")); err != nil {
		return nil, err
	}

	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- GPIB Web Manager Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if driver := os.Getenv("GPIB_DRIVER"); driver != "" {
		c.Instrument.Driver = driver
	}
	if port := os.Getenv("GPIB_SERIAL_PORT"); port != "" {
		c.Instrument.SerialPort = port
	}
	if host := os.Getenv("GPIB_HOST"); host != "" {
		c.Instrument.Host = host
	}
	if password, ok := os.LookupEnv("GPIB_PASSWORD"); ok {
		c.Security.Password = password
	}
	if table := os.Getenv("GPIB_PULSE_TABLE"); table != "" {
		c.Sequence.PulseTable = table
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if c.Sequence.PulseTable != "" && !filepath.IsAbs(c.Sequence.PulseTable) {
		c.Sequence.PulseTable = filepath.Join(configDir, c.Sequence.PulseTable)
	}
	if c.Sequence.PresetFile != "" && !filepath.IsAbs(c.Sequence.PresetFile) {
		c.Sequence.PresetFile = filepath.Join(configDir, c.Sequence.PresetFile)
	}
}

// Validate rejects settings the server cannot run with
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Instrument.Driver == "" {
		return fmt.Errorf("no instrument driver configured")
	}
	if c.Session.LogCapacity <= 0 || c.Session.HistoryCapacity <= 0 {
		return fmt.Errorf("session capacities must be positive")
	}
	return nil
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// InstrumentTimeout returns the driver open/read timeout
func (c *AppConfig) InstrumentTimeout() time.Duration {
	return time.Duration(c.Instrument.TimeoutMs) * time.Millisecond
}

// HoldDuration returns how long a sequence keeps the signal running
func (c *AppConfig) HoldDuration() time.Duration {
	return time.Duration(c.Sequence.HoldSeconds) * time.Second
}

// SettleDelay returns the wait after an instrument reset
func (c *AppConfig) SettleDelay() time.Duration {
	return time.Duration(c.Sequence.SettleDelayMs) * time.Millisecond
}

// AuthEnabled reports whether the basic-auth gate is active
func (c *AppConfig) AuthEnabled() bool {
	return c.Security.Password != ""
}
