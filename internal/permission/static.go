package permission

import (
	"context"

	"github.com/jfmyers9/cadence/internal/playback"
)

// Static is the permission source for backends with no consent model
type Static struct{}

// Status always reports Authorized
func (Static) Status(context.Context) (playback.PermissionStatus, error) {
	return playback.PermissionAuthorized, nil
}

// Request always succeeds
func (Static) Request(context.Context) (bool, error) { return true, nil }

// OpenSystemSettings does nothing
func (Static) OpenSystemSettings() {}
