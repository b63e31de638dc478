package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jfmyers9/cadence/internal/daemon"
	"github.com/spf13/cobra"
)

var daemonLogFile string

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the playback daemon",
	Long: `Run the daemon that keeps track of Spotify playback.

The daemon will:
- Check the macOS Automation permission and prompt once if it was never asked
- Poll Spotify every poll_interval while permission is granted
- Publish the latest state to snapshot.json for 'cadence now --cached'
- Journal permission changes for 'cadence doctor'
- Handle graceful shutdown on SIGINT/SIGTERM

The daemon runs in the foreground and logs to stderr by default.
Use the --log-file flag to log to a file (useful for launchd).`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "", "Log file path (default: stderr)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	b, err := loadBackend(daemonLogFile, true)
	if err != nil {
		return err
	}
	defer b.Close()

	logger := b.logger
	logger.Info().
		Str("version", version).
		Str("backend", b.cfg.Backend).
		Msg("Starting cadence daemon")

	if err := os.MkdirAll(b.cfg.StateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	logger.Info().Str("state_dir", b.cfg.StateDir).Msg("Using state directory")

	d, err := daemon.New(daemon.Config{
		SnapshotFile: b.cfg.SnapshotPath(),
		JournalDB:    b.cfg.JournalPath(),
	}, b.orch, logger)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// Run daemon (blocks until shutdown signal)
	if err := d.Run(context.Background()); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}

	if err := d.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		return err
	}

	logger.Info().Msg("Daemon stopped")
	return nil
}
