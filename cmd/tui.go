package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jfmyers9/cadence/internal/tui"
	"github.com/spf13/cobra"
)

var tuiLogFile string

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Display a terminal UI for now playing",
	Long: `Display a terminal-based user interface showing the track Spotify is
playing, with real-time updates.

The TUI includes:
- Now playing display with track name, artist, and album
- Progress bar showing playback position
- Automation permission banner when Spotify cannot be controlled
- Recently played tracks

Keys: space play/pause, n next, p previous, r retry after granting
permission, o open System Settings, q quit.`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)

	tuiCmd.Flags().StringVar(&tuiLogFile, "log-file", "", "Log file path (logs are discarded by default)")
}

func runTUI(cmd *cobra.Command, args []string) error {
	// Anything written to stderr would corrupt the screen
	logFile := tuiLogFile
	if logFile == "" {
		logFile = os.DevNull
	}

	b, err := loadBackend(logFile, true)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := tui.New(b.orch, tui.DefaultConfig())

	go func() {
		<-ctx.Done()
		app.Stop()
	}()

	// Errors surface in the permission banner
	go func() {
		_ = b.orch.StartPolling(ctx)
	}()

	err = app.Run(ctx)

	// Cancel a pending permission gate before stopping the poller
	stop()
	b.orch.StopPolling()

	return err
}
