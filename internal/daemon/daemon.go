package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jfmyers9/cadence/internal/journal"
	"github.com/jfmyers9/cadence/internal/orchestrator"
	"github.com/jfmyers9/cadence/internal/playback"
	"github.com/rs/zerolog"
)

// Config holds daemon configuration
type Config struct {
	SnapshotFile string        // Path to the published snapshot
	JournalDB    string        // Path to the diagnostic journal
	JournalAge   time.Duration // Journal entries older than this are pruned at shutdown
}

// Daemon hosts one orchestrator and publishes its state
type Daemon struct {
	config   Config
	orch     *orchestrator.Orchestrator
	journal  *journal.Journal
	snapshot *SnapshotFile
	logger   zerolog.Logger

	lastPermission playback.PermissionStatus
	lastError      string
}

// New creates a new Daemon instance
func New(cfg Config, orch *orchestrator.Orchestrator, logger zerolog.Logger) (*Daemon, error) {
	j, err := journal.Open(cfg.JournalDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if cfg.JournalAge <= 0 {
		cfg.JournalAge = 7 * 24 * time.Hour
	}

	return &Daemon{
		config:   cfg,
		orch:     orch,
		journal:  j,
		snapshot: NewSnapshotFile(cfg.SnapshotFile),
		logger:   logger.With().Str("component", "daemon").Logger(),
	}, nil
}

// Run starts the daemon and blocks until ctx is done or a shutdown signal
// is received
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	if err := d.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// run is the main daemon loop
func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().Str("snapshot", d.config.SnapshotFile).Msg("Starting daemon")

	sub := d.orch.Subscribe()
	defer sub.Close()

	// The permission gate may prompt; keep consuming updates meanwhile
	go func() {
		if err := d.orch.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn().Err(err).Msg("Polling did not start")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			d.orch.StopPolling()
			d.logger.Info().Msg("Daemon stopped")
			return ctx.Err()
		case snap, ok := <-sub.Updates:
			if !ok {
				return nil
			}
			d.handleSnapshot(ctx, snap)
		}
	}
}

// handleSnapshot journals permission changes and publishes the snapshot
func (d *Daemon) handleSnapshot(ctx context.Context, snap orchestrator.Snapshot) {
	errMsg := ""
	if snap.LastError != nil {
		errMsg = snap.LastError.Error()
	}

	if snap.PermissionStatus != d.lastPermission || (errMsg != d.lastError && snap.HasPermissionError()) {
		d.logger.Info().
			Str("permission", snap.PermissionStatus.String()).
			Str("phase", snap.Phase.String()).
			Msg("Permission state changed")

		entry := journal.Entry{
			Kind:   journal.KindPermission,
			Detail: snap.PermissionStatus.String(),
		}
		if snap.HasPermissionError() {
			entry.Err = errMsg
		}
		if _, err := d.journal.Record(ctx, entry); err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("Failed to journal permission change")
		}
	}
	d.lastPermission = snap.PermissionStatus
	d.lastError = errMsg

	if _, err := d.snapshot.Write(NewRecord(snap, time.Now())); err != nil {
		d.logger.Error().Err(err).Msg("Failed to write snapshot")
	}
}

// Shutdown prunes the journal, removes the snapshot and closes resources
func (d *Daemon) Shutdown() error {
	d.logger.Info().Msg("Shutting down daemon")

	ctx := context.Background()

	if _, err := d.journal.Prune(ctx, d.config.JournalAge); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to prune journal")
	}

	if err := d.snapshot.Remove(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to remove snapshot")
	}

	if err := d.journal.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}

	return nil
}
