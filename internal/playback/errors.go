package playback

import (
	"errors"
	"regexp"
	"strings"
)

// ErrorKind classifies a failed exchange with the player
type ErrorKind int

const (
	KindNotRunning            ErrorKind = iota + 1 // Player process absent
	KindScriptExecutionFailed                      // Automation call rejected
	KindInvalidResponse                            // Malformed reply
	KindConnectionFailed                           // Transport or timeout failure
)

// String returns a human-readable representation of the ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindNotRunning:
		return "not running"
	case KindScriptExecutionFailed:
		return "script execution failed"
	case KindInvalidResponse:
		return "invalid response"
	case KindConnectionFailed:
		return "connection failed"
	default:
		return "unknown"
	}
}

// ServiceError is returned by every operation that talks to the player.
// Errors are terminal for the call that produced them.
type ServiceError struct {
	Kind    ErrorKind
	Message string // Raw automation message, may embed a numeric code
	Err     error  // Underlying cause, if any
}

// Sentinels for errors.Is; they match any ServiceError of the same kind.
var (
	ErrNotRunning            = &ServiceError{Kind: KindNotRunning}
	ErrScriptExecutionFailed = &ServiceError{Kind: KindScriptExecutionFailed}
	ErrInvalidResponse       = &ServiceError{Kind: KindInvalidResponse}
	ErrConnectionFailed      = &ServiceError{Kind: KindConnectionFailed}
)

func (e *ServiceError) Error() string {
	switch e.Kind {
	case KindNotRunning:
		return "player is not running"
	case KindScriptExecutionFailed:
		if e.Message == "" {
			return "script execution failed"
		}
		return "script execution failed: " + e.Message
	case KindInvalidResponse:
		if e.Message == "" {
			return "invalid response from player"
		}
		return "invalid response from player: " + e.Message
	case KindConnectionFailed:
		if e.Message == "" {
			return "failed to connect to player"
		}
		return "failed to connect to player: " + e.Message
	default:
		return "unknown player error"
	}
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches a target ServiceError by kind
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NotRunning builds a KindNotRunning error
func NotRunning() *ServiceError {
	return &ServiceError{Kind: KindNotRunning}
}

// ScriptFailed builds a KindScriptExecutionFailed error carrying the raw message
func ScriptFailed(message string, cause error) *ServiceError {
	return &ServiceError{Kind: KindScriptExecutionFailed, Message: message, Err: cause}
}

// InvalidResponse builds a KindInvalidResponse error
func InvalidResponse(message string) *ServiceError {
	return &ServiceError{Kind: KindInvalidResponse, Message: message}
}

// ConnectionFailed builds a KindConnectionFailed error
func ConnectionFailed(message string, cause error) *ServiceError {
	return &ServiceError{Kind: KindConnectionFailed, Message: message, Err: cause}
}

// Known automation-layer codes that mean the user withheld consent:
// -1743 errAEEventNotPermitted, -1744 errAEEventWouldRequireUserConsent,
// -10004 errAEPrivilegeError.
var permissionCodePattern = regexp.MustCompile(`(?:^|[^\d])-(?:1743|1744|10004)(?:[^\d]|$)`)

var permissionPhrases = []string{
	"not authorized",
	"not authorised",
	"not permitted",
	"permission denied",
	"erraeeventnotpermitted",
}

// LooksLikePermissionDenial reports whether an automation message matches a
// known permission-denial signature. The automation layer reports these
// inconsistently across OS releases, so matching is best effort.
func LooksLikePermissionDenial(message string) bool {
	if message == "" {
		return false
	}
	if permissionCodePattern.MatchString(message) {
		return true
	}
	lower := strings.ToLower(message)
	for _, phrase := range permissionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// IsPermissionError reports whether err is a rejected automation call whose
// message carries a permission-denial signature
func IsPermissionError(err error) bool {
	var se *ServiceError
	if !errors.As(err, &se) || se.Kind != KindScriptExecutionFailed {
		return false
	}
	return LooksLikePermissionDenial(se.Message)
}
