package playback

import "net/url"

// NotPlayingPlaceholder is the track name reported when the player is stopped
const NotPlayingPlaceholder = "Not Playing"

// State is an immutable snapshot of the player as last observed.
// Values are replaced wholesale, never mutated in place.
type State struct {
	IsPlaying       bool     // Player reports "playing"
	TrackName       string   // Current track name
	ArtistName      string   // Current track artist
	AlbumName       string   // Current track album
	ArtworkURL      *url.URL // Album artwork, nil when unknown
	DurationSeconds int      // Track length in whole seconds
	PositionSeconds int      // Playback position in whole seconds
	IsConnected     bool     // Player process was reachable
}

// Disconnected returns the canonical state used when the player cannot be reached
func Disconnected() State {
	return State{}
}

// Idle returns the canonical connected-but-stopped state
func Idle() State {
	return State{IsConnected: true}
}

// Normalize resets every field of a disconnected state to its zero value
func (s State) Normalize() State {
	if !s.IsConnected {
		return Disconnected()
	}
	if s.DurationSeconds < 0 {
		s.DurationSeconds = 0
	}
	if s.PositionSeconds < 0 {
		s.PositionSeconds = 0
	}
	return s
}

// WithPlaying returns a copy of s with IsPlaying set and all metadata kept
func (s State) WithPlaying(playing bool) State {
	s.IsPlaying = playing
	return s
}

// HasTrack reports whether the state carries track metadata
func (s State) HasTrack() bool {
	return s.IsConnected && s.TrackName != "" && s.TrackName != NotPlayingPlaceholder
}

// Equal compares two states field by field
func (s State) Equal(o State) bool {
	if s.IsPlaying != o.IsPlaying ||
		s.TrackName != o.TrackName ||
		s.ArtistName != o.ArtistName ||
		s.AlbumName != o.AlbumName ||
		s.DurationSeconds != o.DurationSeconds ||
		s.PositionSeconds != o.PositionSeconds ||
		s.IsConnected != o.IsConnected {
		return false
	}
	switch {
	case s.ArtworkURL == nil && o.ArtworkURL == nil:
		return true
	case s.ArtworkURL == nil || o.ArtworkURL == nil:
		return false
	default:
		return s.ArtworkURL.String() == o.ArtworkURL.String()
	}
}

// Artwork returns the artwork URL as a string, or "" when unknown
func (s State) Artwork() string {
	if s.ArtworkURL == nil {
		return ""
	}
	return s.ArtworkURL.String()
}
