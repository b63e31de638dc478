/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/jfmyers9/cadence/internal/daemon"
	"github.com/jfmyers9/cadence/internal/playback"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

// cachedMaxAge is how old a daemon snapshot may be before --cached ignores it
const cachedMaxAge = 10 * time.Second

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the track Spotify is playing",
	Long: `Query Spotify and display the currently playing track.

The output format can be customized in ~/.config/cadence/config.yaml
using a Go template. Available fields: .Name, .Artist, .Album, .Duration,
.Position, .Playing

With --cached the state is read from the snapshot published by
'cadence daemon' instead of asking Spotify, which is cheap enough for a
tmux status line.

Exit codes:
  0 - Track is currently playing
  1 - No track playing, paused, or Spotify not running
  3 - Automation permission denied`,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
	nowCmd.Flags().Bool("marquee", false, "Enable marquee scrolling for long text (overrides config)")
	nowCmd.Flags().Bool("cached", false, "Read the daemon snapshot instead of querying Spotify")
}

// nowTrack is the data handed to the output template
type nowTrack struct {
	Name     string
	Artist   string
	Album    string
	Duration time.Duration
	Position time.Duration
	Playing  bool
}

func newNowTrack(s playback.State) nowTrack {
	return nowTrack{
		Name:     s.TrackName,
		Artist:   s.ArtistName,
		Album:    s.AlbumName,
		Duration: time.Duration(s.DurationSeconds) * time.Second,
		Position: time.Duration(s.PositionSeconds) * time.Second,
		Playing:  s.IsPlaying,
	}
}

func runNow(cmd *cobra.Command, args []string) error {
	b, err := loadBackend("", false)
	if err != nil {
		return err
	}
	defer b.Close()
	cfg := b.cfg

	if formatFlag, _ := cmd.Flags().GetString("format"); formatFlag != "" {
		cfg.OutputFormat = formatFlag
	}

	var state playback.State
	if cached, _ := cmd.Flags().GetBool("cached"); cached {
		state = cachedState(cfg.SnapshotPath(), time.Now())
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout+time.Second)
		defer cancel()

		state, err = b.bridge.FetchState(ctx)
		if err != nil {
			if playback.IsPermissionError(err) {
				return &exitError{code: exitPermission, err: fmt.Errorf("automation permission denied, run 'cadence permission request': %w", err)}
			}
			return fmt.Errorf("failed to get current track: %w", err)
		}
	}

	// Not playing is reported through the exit code alone
	if !state.IsPlaying || !state.HasTrack() {
		os.Exit(exitFailure)
		return nil
	}

	output, err := formatTrack(newNowTrack(state), cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	width, _ := cmd.Flags().GetInt("width")
	if width == 0 {
		width = cfg.OutputWidth
	}

	marquee := cfg.Marquee
	if cmd.Flags().Changed("marquee") {
		marquee, _ = cmd.Flags().GetBool("marquee")
	}

	if width > 0 {
		if marquee {
			output = marqueeText(output, width, cfg.MarqueeSpeed, cfg.MarqueeSeparator, time.Now().Unix())
		} else {
			output = padToWidth(output, width)
		}
	}

	fmt.Println(output)
	return nil
}

// cachedState reads the daemon snapshot. A missing or stale snapshot means
// nothing is known to be playing.
func cachedState(path string, now time.Time) playback.State {
	rec, err := daemon.ReadSnapshot(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		return playback.Disconnected()
	}
	if rec.Stale(now, cachedMaxAge) {
		return playback.Disconnected()
	}
	return rec.State()
}

// formatTrack applies the template to the track data
func formatTrack(track nowTrack, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, track); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}

// padToWidth pads or truncates text to a fixed display width.
// Width is measured in display columns, so wide runes count twice.
// Text longer than width is truncated with a "..." suffix.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)
	switch {
	case currentWidth > width:
		const ellipsis = "..."
		ellipsisWidth := runewidth.StringWidth(ellipsis)
		if width <= ellipsisWidth {
			return runewidth.Truncate(ellipsis, width, "")
		}
		result := runewidth.Truncate(text, width-ellipsisWidth, "") + ellipsis
		return runewidth.FillRight(result, width)
	case currentWidth < width:
		return text + strings.Repeat(" ", width-currentWidth)
	}

	return text
}

// marqueeText returns a width-column window into text that scrolls speed
// characters per second. The window position is derived from unix, so
// repeated invocations (one per tmux status refresh) advance the text
// without keeping state. Text that fits is padded instead.
func marqueeText(text string, width, speed int, separator string, unix int64) string {
	if width <= 0 {
		return text
	}
	if runewidth.StringWidth(text) <= width {
		return padToWidth(text, width)
	}

	// Looping the text through the separator makes the scroll continuous
	extended := []rune(text + separator + text)
	total := len(extended)
	position := int(unix*int64(speed)) % total
	if position < 0 {
		position += total
	}

	var sb strings.Builder
	used := 0
	for i := range total {
		r := extended[(position+i)%total]
		rw := runewidth.RuneWidth(r)
		if used+rw > width {
			break
		}
		sb.WriteRune(r)
		used += rw
	}

	if used < width {
		sb.WriteString(strings.Repeat(" ", width-used))
	}
	return sb.String()
}
