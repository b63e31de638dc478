package playback

// PermissionStatus is the OS automation-permission state for the player
type PermissionStatus int

const (
	PermissionNotDetermined PermissionStatus = iota // Not yet asked, or cannot be evaluated
	PermissionAuthorized                            // User allowed automation
	PermissionDenied                                // User refused automation
	PermissionRestricted                            // Blocked by policy
)

// String returns a human-readable representation of the PermissionStatus
func (p PermissionStatus) String() string {
	switch p {
	case PermissionNotDetermined:
		return "not determined"
	case PermissionAuthorized:
		return "authorized"
	case PermissionDenied:
		return "denied"
	case PermissionRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}
