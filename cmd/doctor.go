package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jfmyers9/cadence/internal/daemon"
	"github.com/jfmyers9/cadence/internal/journal"
	"github.com/spf13/cobra"
)

var doctorEntries int

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the connection to Spotify",
	Long: `Report everything cadence knows about its connection to Spotify:
the configured backend, whether Spotify is installed and running, the
Automation permission status, the age of the daemon snapshot, and the
most recent journaled permission changes and commands.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().IntVarP(&doctorEntries, "entries", "n", 10, "Number of journal entries to show")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	b, err := loadBackend("", false)
	if err != nil {
		return err
	}
	defer b.Close()
	cfg := b.cfg

	fmt.Printf("Backend:     %s\n", cfg.Backend)

	if b.coordinator != nil {
		fmt.Printf("Installed:   %s\n", yesNo(b.coordinator.IsTargetInstalled()))
	}
	fmt.Printf("Running:     %s\n", yesNo(b.service.IsRunning()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout+time.Second)
	defer cancel()
	if status, err := b.orch.CheckPermission(ctx); err != nil {
		fmt.Printf("Permission:  unknown (%v)\n", err)
	} else {
		fmt.Printf("Permission:  %s\n", status)
	}

	printSnapshot(cfg.SnapshotPath())
	printJournal(cfg.JournalPath(), doctorEntries)

	return nil
}

func printSnapshot(path string) {
	rec, err := daemon.ReadSnapshot(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Println("Daemon:      no snapshot (is 'cadence daemon' running?)")
		return
	case err != nil:
		fmt.Printf("Daemon:      %v\n", err)
		return
	}

	fmt.Printf("Daemon:      %s, updated %s\n", rec.Phase, humanize.Time(rec.UpdatedAt))
	if rec.TrackName != "" {
		fmt.Printf("Last track:  %s - %s\n", rec.ArtistName, rec.TrackName)
	}
	if rec.LastError != "" {
		fmt.Printf("Last error:  %s\n", rec.LastError)
	}
}

func printJournal(path string, limit int) {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Println("Journal:     empty")
		return
	}

	j, err := journal.Open(path)
	if err != nil {
		fmt.Printf("Journal:     %v\n", err)
		return
	}
	defer j.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := j.Count(ctx)
	if err != nil {
		fmt.Printf("Journal:     %v\n", err)
		return
	}
	fmt.Printf("Journal:     %s events (%s)\n", humanize.Comma(int64(count)), humanize.IBytes(uint64(info.Size())))

	entries, err := j.Recent(ctx, limit)
	if err != nil {
		fmt.Printf("Journal:     %v\n", err)
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("  %-14s %-10s %s", humanize.Time(e.At), e.Kind, e.Detail)
		if e.Err != "" {
			line += ": " + e.Err
		}
		fmt.Println(line)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
