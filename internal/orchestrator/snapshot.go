package orchestrator

import "github.com/jfmyers9/cadence/internal/playback"

// Phase is where the orchestrator is in its polling lifecycle
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePermissionGate
	PhasePolling
	PhaseBlockedByPermission
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePermissionGate:
		return "permission gate"
	case PhasePolling:
		return "polling"
	case PhaseBlockedByPermission:
		return "blocked by permission"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of everything the orchestrator publishes
type Snapshot struct {
	Current          playback.State
	Phase            Phase
	PermissionStatus playback.PermissionStatus
	LastError        error
}

// IsPolling reports whether the polling loop is active
func (s Snapshot) IsPolling() bool {
	return s.Phase == PhasePolling
}

// IsBlockedByPermission reports whether the last gate was refused
func (s Snapshot) IsBlockedByPermission() bool {
	return s.Phase == PhaseBlockedByPermission
}

// HasPermissionError reports whether the status is Denied or the last
// failure carries a permission-denial signature
func (s Snapshot) HasPermissionError() bool {
	return s.PermissionStatus == playback.PermissionDenied ||
		playback.IsPermissionError(s.LastError)
}
