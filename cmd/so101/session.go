package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/gwillem/so101/pkg/bus"
	"github.com/gwillem/so101/pkg/robot"
)

// DefaultPort is used when neither a flag, SO101_PORT nor so101.json names one.
const DefaultPort = "/dev/ttyUSB0"

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// settings resolves the effective configuration: flags and environment win
// over so101.json, which wins over built-in defaults.
func settings(o *Options) (robot.Config, error) {
	var cfg robot.Config
	if o.Config != "" {
		loaded, err := robot.LoadConfigFrom(o.Config)
		switch {
		case err == nil:
			cfg = *loaded
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("load %s: %w", o.Config, err)
		}
	}

	if o.Port != "" {
		cfg.Port = o.Port
	}
	if o.Baud != 0 {
		cfg.BaudRate = o.Baud
	}
	if o.Limits != "" {
		cfg.LimitsFile = o.Limits
	}
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = bus.DefaultBaudRate
	}
	return cfg.WithDefaults(), nil
}

func (o *Options) level() log.Level {
	if o.Verbose {
		return log.DebugLevel
	}
	lvl, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func newLogger(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           opts.level(),
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
}

// logLines is an io.Writer that forwards each log line to a terminal UI.
// Lines are dropped while the UI is not keeping up.
type logLines chan string

func (l logLines) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		select {
		case l <- string(line):
		default:
		}
	}
	return len(p), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openSession opens the bus and discovers the arm's joints. The returned
// transport stays owned by the caller: close it directly to leave torque as
// it is, or close the session to release torque first.
func openSession(ctx context.Context, cfg robot.Config, logger *log.Logger) (*robot.Session, *bus.Feetech, error) {
	fb, err := bus.Open(bus.Config{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		MaxID:    opts.MaxID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", robot.ErrBusUnavailable, err)
	}

	sess := robot.NewSession(fb,
		robot.WithLogger(logger),
		robot.WithCommandInterval(cfg.CommandInterval()),
	)
	if _, err := sess.Discover(ctx); err != nil {
		fb.Close()
		return nil, nil, fmt.Errorf("%s: %w", cfg.Port, err)
	}
	return sess, fb, nil
}

func limitFile(cfg robot.Config) robot.LimitFile {
	return robot.LimitFile{Path: cfg.LimitsFile}
}
