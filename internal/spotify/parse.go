package spotify

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/jfmyers9/cadence/internal/playback"
)

const (
	fieldDelimiter  = "|||"
	stoppedSentinel = "stopped"
	replyFields     = 7
)

// parseStateReply converts the fetch script's reply into a State.
//
// The reply is either the "stopped" sentinel or seven delimited fields:
// name, artist, album, artwork url, duration (ms), position (s), player state.
func parseStateReply(reply string) (playback.State, error) {
	reply = strings.TrimSpace(reply)

	if reply == stoppedSentinel {
		idle := playback.Idle()
		idle.TrackName = playback.NotPlayingPlaceholder
		return idle, nil
	}

	parts := strings.Split(reply, fieldDelimiter)
	if len(parts) != replyFields {
		return playback.State{}, playback.InvalidResponse(
			fmt.Sprintf("expected %d fields, got %d: %q", replyFields, len(parts), reply))
	}

	durationMs, err := parseMillis(parts[4])
	if err != nil {
		return playback.State{}, playback.InvalidResponse(fmt.Sprintf("bad duration %q", parts[4]))
	}

	position, err := parseSeconds(parts[5])
	if err != nil {
		return playback.State{}, playback.InvalidResponse(fmt.Sprintf("bad position %q", parts[5]))
	}

	state := playback.State{
		IsPlaying:       strings.TrimSpace(parts[6]) == "playing",
		TrackName:       strings.TrimSpace(parts[0]),
		ArtistName:      strings.TrimSpace(parts[1]),
		AlbumName:       strings.TrimSpace(parts[2]),
		ArtworkURL:      parseArtwork(parts[3]),
		DurationSeconds: int(durationMs / 1000),
		PositionSeconds: position,
		IsConnected:     true,
	}

	return state.Normalize(), nil
}

// parseMillis reads an integer millisecond count. Some player builds report a
// float; it is truncated.
func parseMillis(s string) (int64, error) {
	s = normalizeDecimal(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return max(ms, 0), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid milliseconds %q", s)
	}
	return max(int64(f), 0), nil
}

// parseSeconds reads a possibly fractional second count and truncates it
func parseSeconds(s string) (int, error) {
	f, err := strconv.ParseFloat(normalizeDecimal(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid seconds %q", s)
	}
	if f < 0 {
		return 0, nil
	}
	return int(math.Trunc(f)), nil
}

// normalizeDecimal accepts a comma decimal separator, which AppleScript uses
// under some locales
func normalizeDecimal(s string) string {
	return strings.Replace(strings.TrimSpace(s), ",", ".", 1)
}

// parseArtwork returns nil for empty, "missing value" or unparsable URLs
func parseArtwork(s string) *url.URL {
	s = strings.TrimSpace(s)
	if s == "" || s == "missing value" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return nil
	}
	return u
}
