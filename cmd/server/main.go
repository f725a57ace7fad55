package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gpib-manager/backend/internal/api"
	"github.com/gpib-manager/backend/internal/config"
	"github.com/gpib-manager/backend/internal/instrument"
	"github.com/gpib-manager/backend/internal/models"
	"github.com/gpib-manager/backend/internal/parser"
	"github.com/gpib-manager/backend/internal/sequence"
	"github.com/gpib-manager/backend/internal/session"
	"github.com/gpib-manager/backend/internal/web"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/skratchdot/open-golang/open"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	configPath := flag.String("config", filepath.Join(filepath.Dir(exePath), "GPIBWebManager.config"), "path to the XML configuration file")
	openBrowser := flag.Bool("open", false, "open the control page in the default browser")
	flag.Parse()

	// Load XML configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	driver, err := instrument.New(cfg.Instrument.Driver, instrument.Options{
		SerialPort: cfg.Instrument.SerialPort,
		BaudRate:   cfg.Instrument.BaudRate,
		Host:       cfg.Instrument.Host,
		Debug:      cfg.Instrument.Debug,
	})
	if err != nil {
		fmt.Printf("Failed to initialize instrument driver: %v\n", err)
		os.Exit(1)
	}

	// One session shared by every request
	sessionMgr := session.NewManager(driver,
		session.WithTimeout(cfg.InstrumentTimeout()),
		session.WithLogCapacity(cfg.Session.LogCapacity),
		session.WithHistoryCapacity(cfg.Session.HistoryCapacity),
	)

	pulses := loadPulses(cfg)

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(parseLogLevel(cfg.Advanced.LogLevel))

	runner := sequence.NewRunner(sessionMgr,
		sequence.WithSettleDelay(cfg.SettleDelay()),
		sequence.WithLogf(e.Logger.Infof),
	)

	renderer, err := web.NewRenderer()
	if err != nil {
		fmt.Printf("Failed to load templates: %v\n", err)
		os.Exit(1)
	}
	e.Renderer = renderer

	api.SetupMiddleware(e, api.MiddlewareConfig{
		RequestLogging: cfg.Advanced.EnableRequestLogging,
		BodyLimit:      cfg.Server.BodyLimit,
		EnableCORS:     cfg.Server.EnableCORS,
		AllowOrigins:   api.SplitOrigins(cfg.Server.AllowOrigins),
		Password:       cfg.Security.Password,
		Realm:          cfg.Security.Realm,
		ExcludedPath:   cfg.Security.ExcludedPath,
	})

	h := api.NewHandler(sessionMgr, runner, pulses, api.Options{
		Version:          Version,
		Driver:           driver.Name(),
		DefaultAddress:   cfg.Instrument.DefaultAddress,
		ResponseLogLines: cfg.Session.ResponseLogLines,
		StatusLogLines:   cfg.Session.StatusLogLines,
		PageHistoryLines: cfg.Session.PageHistoryLines,
		PollIntervalMs:   cfg.Session.PollIntervalMs,
		ListPorts:        instrument.ListSerialPorts,
	})
	api.RegisterRoutes(e, api.NewHandlers(h))

	if err := web.RegisterStaticRoutes(e); err != nil {
		fmt.Printf("Warning: failed to register static routes: %v\n", err)
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	auth := "disabled"
	if cfg.AuthEnabled() {
		auth = "basic (except " + cfg.Security.ExcludedPath + ")"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           GPIB Web Manager                                ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Driver:     %-45s║\n", driver.Name())
	fmt.Printf("║  Auth:       %-45s║\n", auth)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", *configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Presets:   %-46d║\n", len(pulses))
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	if *openBrowser {
		url := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		if err := open.Run(url); err != nil {
			fmt.Printf("Warning: failed to open browser: %v\n", err)
		}
	}

	<-ctx.Done()
	fmt.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Error(err)
	}
	if err := sessionMgr.Disconnect(); err != nil {
		e.Logger.Error(err)
	}
}

// loadPulses reads the preset file or pulse table named in the config and
// falls back to the built-in ISO 7637-2 presets.
func loadPulses(cfg *config.AppConfig) []models.PulseConfig {
	for _, path := range []string{cfg.Sequence.PresetFile, cfg.Sequence.PulseTable} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}

		pulses, warnings, err := parser.LoadPulses(path)
		for _, w := range warnings {
			fmt.Printf("Warning: %s: %s\n", path, w)
		}
		if err != nil {
			fmt.Printf("Warning: failed to load pulses from %s: %v\n", path, err)
			continue
		}
		fmt.Printf("Loaded %d pulse presets from %s\n", len(pulses), path)
		return pulses
	}

	fmt.Println("Using built-in ISO 7637-2 presets")
	return parser.BuiltinPresets()
}

func parseLogLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
