package playback

import "fmt"

// Command is an imperative playback directive sent to the player
type Command int

const (
	CommandPlay            Command = iota // Resume playback
	CommandPause                          // Pause playback
	CommandTogglePlayPause                // Toggle between play and pause
	CommandNextTrack                      // Skip to the next track
	CommandPreviousTrack                  // Go back to the previous track
)

// String returns a human-readable representation of the Command
func (c Command) String() string {
	switch c {
	case CommandPlay:
		return "play"
	case CommandPause:
		return "pause"
	case CommandTogglePlayPause:
		return "toggle"
	case CommandNextTrack:
		return "next"
	case CommandPreviousTrack:
		return "previous"
	default:
		return "unknown"
	}
}

// Directive returns the scripting verb the player understands for c
func (c Command) Directive() (string, error) {
	switch c {
	case CommandPlay:
		return "play", nil
	case CommandPause:
		return "pause", nil
	case CommandTogglePlayPause:
		return "playpause", nil
	case CommandNextTrack:
		return "next track", nil
	case CommandPreviousTrack:
		return "previous track", nil
	default:
		return "", fmt.Errorf("unknown playback command %d", int(c))
	}
}
