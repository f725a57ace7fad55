// Command pulsegen drives a signal generator through a pulse sequence read
// from a CSV/TSV table, either once (the last row) or interactively.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gpib-manager/backend/internal/config"
	"github.com/gpib-manager/backend/internal/instrument"
	"github.com/gpib-manager/backend/internal/models"
	"github.com/gpib-manager/backend/internal/parser"
	"github.com/gpib-manager/backend/internal/sequence"
	"github.com/gpib-manager/backend/internal/session"
	"github.com/joho/godotenv"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	indexStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

type options struct {
	settings    string
	table       string
	address     string
	driver      string
	port        string
	host        string
	interactive bool
	hold        time.Duration
	timeout     time.Duration
	settle      time.Duration
	generate    string
	debug       bool
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	opts := options{settle: sequence.DefaultSettleDelay}
	flag.StringVar(&opts.settings, "settings", "GPIBWebManager.config", "server XML config; when present it supplies defaults for unset flags")
	flag.StringVar(&opts.table, "config", envOr("GPIB_PULSE_TABLE", "config.csv"), "pulse table (CSV/TSV) or preset file (YAML)")
	flag.StringVar(&opts.address, "address", "GPIB::10::INSTR", "instrument address or GPIB primary address")
	flag.StringVar(&opts.driver, "driver", envOr("GPIB_DRIVER", "sim"), "instrument driver: "+strings.Join(instrument.Drivers(), ", "))
	flag.StringVar(&opts.port, "port", envOr("GPIB_SERIAL_PORT", "/dev/ttyUSB0"), "serial port of a Prologix GPIB-USB adapter")
	flag.StringVar(&opts.host, "host", os.Getenv("GPIB_HOST"), "host of a Prologix GPIB-Ethernet adapter")
	flag.BoolVar(&opts.interactive, "interactive", false, "choose pulses from the table interactively")
	flag.DurationVar(&opts.hold, "hold", 2*time.Second, "how long to hold the signal before disconnecting")
	flag.DurationVar(&opts.timeout, "timeout", instrument.DefaultTimeout, "instrument I/O timeout")
	flag.StringVar(&opts.generate, "generate", "", "write the built-in presets as a TSV table to this file and exit")
	flag.BoolVar(&opts.debug, "debug", false, "log adapter traffic")
	flag.Parse()

	log.SetFlags(log.Ltime)

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if err := applySettings(&opts, explicit); err != nil {
		log.Fatal(errStyle.Render(err.Error()))
	}

	if opts.generate != "" {
		if err := generateTable(opts.generate); err != nil {
			log.Fatal(errStyle.Render("generate: " + err.Error()))
		}
		log.Printf("Wrote %d presets to %s", len(parser.BuiltinPresets()), opts.generate)
		return
	}

	driver, err := instrument.New(opts.driver, instrument.Options{
		SerialPort: opts.port,
		Host:       opts.host,
		Debug:      opts.debug,
	})
	if err != nil {
		log.Fatal(errStyle.Render(err.Error()))
	}

	if notice := driverNotice(driver.Name()); notice != "" {
		log.Print(warnStyle.Render(notice))
	}

	mgr := session.NewManager(driver, session.WithTimeout(opts.timeout))
	runner := sequence.NewRunner(mgr,
		sequence.WithSettleDelay(opts.settle),
		sequence.WithLogf(log.Printf),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.interactive {
		err = runInteractive(ctx, runner, opts, os.Stdin)
	} else {
		err = runSingle(ctx, runner, opts)
	}
	if err != nil {
		log.Print(errStyle.Render(err.Error()))
		os.Exit(1)
	}
}

// applySettings fills the flags the user did not set from the server's XML
// config, when that file exists.
func applySettings(opts *options, explicit map[string]bool) error {
	if opts.settings == "" {
		return nil
	}
	if _, err := os.Stat(opts.settings); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	cfg, err := config.LoadConfig(opts.settings)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	log.Printf("Using defaults from %s", opts.settings)

	set := func(name string, apply func()) {
		if !explicit[name] {
			apply()
		}
	}
	set("config", func() { opts.table = cfg.Sequence.PulseTable })
	set("address", func() { opts.address = cfg.Instrument.DefaultAddress })
	set("driver", func() { opts.driver = cfg.Instrument.Driver })
	set("port", func() { opts.port = cfg.Instrument.SerialPort })
	set("host", func() { opts.host = cfg.Instrument.Host })
	set("hold", func() { opts.hold = cfg.HoldDuration() })
	set("timeout", func() { opts.timeout = cfg.InstrumentTimeout() })
	set("debug", func() { opts.debug = cfg.Instrument.Debug })
	opts.settle = cfg.SettleDelay()
	return nil
}

// driverNotice warns that no real instrument is being driven.
func driverNotice(name string) string {
	if name != "sim" {
		return ""
	}
	return "Notice: using the simulated instrument; pass -driver " +
		strings.Join(slices.DeleteFunc(instrument.Drivers(), func(d string) bool { return d == "sim" }), "|") +
		" to drive real hardware"
}

// runSingle applies the last valid row of the table, or the default pulse
// when the table cannot be used.
func runSingle(ctx context.Context, runner *sequence.Runner, opts options) error {
	cfg := models.DefaultPulse()

	pulses, err := loadTable(opts.table)
	if err != nil {
		log.Print(warnStyle.Render(fmt.Sprintf("Warning: %v; using defaults", err)))
	} else {
		cfg = pulses[len(pulses)-1]
	}

	log.Printf("Applying %s", titleStyle.Render(cfg.String()))
	return execute(ctx, runner, opts, cfg)
}

// runInteractive lists every pulse and applies the ones the user picks
// until they quit or input ends.
func runInteractive(ctx context.Context, runner *sequence.Runner, opts options, in io.Reader) error {
	pulses, err := loadTable(opts.table)
	if err != nil {
		return err
	}

	printPulses(os.Stdout, pulses)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Printf("Select pulse [1-%d], l to list, q to quit: ", len(pulses))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		choice, quit, ok := parseChoice(scanner.Text(), len(pulses))
		switch {
		case quit:
			return nil
		case strings.EqualFold(strings.TrimSpace(scanner.Text()), "l"):
			printPulses(os.Stdout, pulses)
			continue
		case !ok:
			fmt.Println(warnStyle.Render("Invalid selection"))
			continue
		}

		if err := execute(ctx, runner, opts, pulses[choice]); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// execute runs one sequence. Only connection failures abort the caller.
func execute(ctx context.Context, runner *sequence.Runner, opts options, cfg models.PulseConfig) error {
	res, err := runner.RunSequence(ctx, opts.address, cfg, opts.hold)
	if err == nil {
		log.Printf("Done in %s (%s)", res.Duration.Round(time.Millisecond), strings.Join(res.Completed, ", "))
		return nil
	}

	var connErr *session.ConnectError
	if errors.As(err, &connErr) || errors.Is(err, context.Canceled) {
		return err
	}
	log.Print(errStyle.Render(fmt.Sprintf("Sequence failed after %v: %v", res.Completed, err)))
	return nil
}

func loadTable(path string) ([]models.PulseConfig, error) {
	pulses, warnings, err := parser.LoadPulses(path)
	for _, w := range warnings {
		log.Print(warnStyle.Render(fmt.Sprintf("Warning: skipping %s", w)))
	}
	if err != nil {
		return nil, err
	}
	return pulses, nil
}

func printPulses(w io.Writer, pulses []models.PulseConfig) {
	fmt.Fprintln(w, titleStyle.Render("Available pulses:"))
	for i, p := range pulses {
		fmt.Fprintf(w, "%s %s\n", indexStyle.Render(fmt.Sprintf("%3d.", i+1)), p)
	}
}

// parseChoice maps a 1-based menu selection to a slice index.
func parseChoice(input string, n int) (idx int, quit, ok bool) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "q") || strings.EqualFold(input, "quit") {
		return 0, true, false
	}
	v, err := strconv.Atoi(input)
	if err != nil || v < 1 || v > n {
		return 0, false, false
	}
	return v - 1, false, true
}

func generateTable(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := parser.WritePulseTable(f, parser.BuiltinPresets(), '\t'); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
