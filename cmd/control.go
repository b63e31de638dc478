package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jfmyers9/cadence/internal/journal"
	"github.com/jfmyers9/cadence/internal/orchestrator"
	"github.com/jfmyers9/cadence/internal/playback"
	"github.com/spf13/cobra"
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Resume playback in Spotify",
	Long:  `Resume playback in Spotify. If paused, starts playing the current track.`,
	RunE:  controlRun("play", (*orchestrator.Orchestrator).Play),
}

// pauseCmd represents the pause command
var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause playback in Spotify",
	Long:  `Pause playback in Spotify. Pauses the currently playing track.`,
	RunE:  controlRun("pause", (*orchestrator.Orchestrator).Pause),
}

// playpauseCmd represents the playpause command
var playpauseCmd = &cobra.Command{
	Use:     "playpause",
	Aliases: []string{"toggle"},
	Short:   "Toggle play/pause in Spotify",
	Long:    `Toggle between play and pause states in Spotify. If playing, pauses. If paused, resumes.`,
	RunE:    controlRun("playpause", togglePlayPause),
}

// nextCmd represents the next command
var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to next track in Spotify",
	Long:  `Skip to the next track in Spotify. Advances to the next track in the current playlist or queue.`,
	RunE:  controlRun("next", (*orchestrator.Orchestrator).NextTrack),
}

// prevCmd represents the prev command
var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Go to previous track in Spotify",
	Long:  `Go to the previous track in Spotify. Returns to the previous track in the current playlist or queue.`,
	RunE:  controlRun("prev", (*orchestrator.Orchestrator).PreviousTrack),
}

func init() {
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(playpauseCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
}

// togglePlayPause refreshes first so the optimistic flip starts from the
// player's real state rather than the empty one a fresh process holds
func togglePlayPause(o *orchestrator.Orchestrator, ctx context.Context) error {
	if err := o.Refresh(ctx); err != nil {
		return err
	}
	return o.TogglePlayPause(ctx)
}

// controlRun builds the RunE for a playback command
func controlRun(name string, action func(*orchestrator.Orchestrator, context.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		b, err := loadBackend("", false)
		if err != nil {
			return err
		}
		defer b.Close()

		// Room for the command, the track settle and the refresh
		timeout := 2*b.cfg.CallTimeout + b.cfg.TrackSettle
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err = action(b.orch, ctx)
		journalCommand(b, name, err)
		if err != nil {
			return commandError(name, err)
		}

		return nil
	}
}

// commandError maps permission failures to their own exit code
func commandError(name string, err error) error {
	err = fmt.Errorf("failed to %s: %w", name, err)
	if isPermissionFailure(err) {
		return &exitError{code: exitPermission, err: err}
	}
	return err
}

func isPermissionFailure(err error) bool {
	return playback.IsPermissionError(err) ||
		errors.Is(err, orchestrator.ErrPermissionDenied) ||
		errors.Is(err, orchestrator.ErrPermissionRestricted)
}

// journalCommand records the outcome of a command. Failures to journal are
// logged and otherwise ignored.
func journalCommand(b *backend, name string, cmdErr error) {
	if err := os.MkdirAll(b.cfg.StateDir, 0755); err != nil {
		b.logger.Debug().Err(err).Msg("Failed to create state directory")
		return
	}

	j, err := journal.Open(b.cfg.JournalPath())
	if err != nil {
		b.logger.Debug().Err(err).Msg("Failed to open journal")
		return
	}
	defer j.Close()

	entry := journal.Entry{Kind: journal.KindCommand, Detail: name, At: time.Now()}
	if cmdErr != nil {
		entry.Err = cmdErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := j.Record(ctx, entry); err != nil {
		b.logger.Debug().Err(err).Msg("Failed to journal command")
	}
}
