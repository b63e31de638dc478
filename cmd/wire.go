package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jfmyers9/cadence/internal/config"
	"github.com/jfmyers9/cadence/internal/orchestrator"
	"github.com/jfmyers9/cadence/internal/permission"
	"github.com/jfmyers9/cadence/internal/spotify"
	"github.com/rs/zerolog"
)

// backend is everything a command needs to talk to the player
type backend struct {
	cfg     *config.Config
	logger  zerolog.Logger
	bridge  spotify.Bridge
	service *spotify.Service
	perms   orchestrator.Permissions
	orch    *orchestrator.Orchestrator

	// coordinator is nil for backends without a consent model
	coordinator *permission.Coordinator

	closers []func() error
}

// loadBackend loads configuration and builds the backend it selects.
// Long-running commands log at the configured level; one-shot commands
// only log warnings unless --log-level is given.
func loadBackend(logFile string, longRunning bool) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := "warn"
	if longRunning {
		level = cfg.LogLevel
	}
	if globalLogLevel != "" {
		level = globalLogLevel
	}
	logger := setupLogger(logFile, level)

	return newBackend(cfg, logger)
}

func newBackend(cfg *config.Config, logger zerolog.Logger) (*backend, error) {
	b := &backend{cfg: cfg, logger: logger}

	switch cfg.Backend {
	case config.BackendMPRIS:
		bus, err := spotify.NewSessionBus()
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, bus.Close)
		b.bridge = spotify.NewMPRISClient(bus, cfg.MPRISName, cfg.CallTimeout, logger)
		b.perms = permission.Static{}
	default:
		b.bridge = spotify.NewAppleScriptClient(spotify.Options{
			BundleID:    cfg.BundleID,
			AppName:     cfg.AppName,
			CallTimeout: cfg.CallTimeout,
		}, logger)
		b.coordinator = permission.NewAppleScript(permission.Options{
			BundleID:     cfg.BundleID,
			AppName:      cfg.AppName,
			CallTimeout:  cfg.CallTimeout,
			LaunchSettle: cfg.LaunchSettle,
		}, logger)
		b.perms = b.coordinator
	}

	b.service = spotify.NewService(b.bridge, logger)
	b.orch = orchestrator.New(b.service, b.perms, orchestrator.Options{
		PollInterval: cfg.PollInterval,
		TrackSettle:  cfg.TrackSettle,
	}, logger)

	return b, nil
}

// Close releases backend resources
func (b *backend) Close() {
	for _, c := range b.closers {
		if err := c(); err != nil {
			b.logger.Debug().Err(err).Msg("Error closing backend")
		}
	}
}

// setupLogger creates a logger with the specified configuration
func setupLogger(logFile, logLevel string) zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || logLevel == "" {
		level = zerolog.InfoLevel
	}

	// Set up output
	var output *os.File
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			output = os.Stderr
		} else {
			output = f
		}
	} else {
		output = os.Stderr
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	// Use pretty console output if logging to stderr
	if output == os.Stderr {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}
