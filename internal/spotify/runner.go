package spotify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Automation-layer error codes reported by osascript
const (
	CodeNotAuthorized           = -1743 // errAEEventNotPermitted
	CodeWouldRequireUserConsent = -1744 // errAEEventWouldRequireUserConsent
	CodeAppNotRunning           = -600  // procNotFound
)

// Runner submits one script to the OS scripting facility and returns its reply
type Runner interface {
	Run(ctx context.Context, script string) (string, error)
}

// ScriptError is a rejected script: the numeric code and message osascript
// printed on stderr
type ScriptError struct {
	Code    int
	Message string
}

func (e *ScriptError) Error() string {
	if e.Code == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// ScriptErrorCode extracts the automation code from err, or 0 if err is not a
// ScriptError
func ScriptErrorCode(err error) int {
	var se *ScriptError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// OSAScript runs AppleScript source through the osascript binary
type OSAScript struct {
	// Path to osascript; defaults to "osascript" on $PATH
	Path string
}

// Run executes script and returns its trimmed stdout
func (r OSAScript) Run(ctx context.Context, script string) (string, error) {
	path := r.Path
	if path == "" {
		path = "osascript"
	}

	cmd := exec.CommandContext(ctx, path, "-e", script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// A killed process reports a generic exit error; prefer the reason
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", parseScriptError(stderr.String())
		}
		return "", fmt.Errorf("failed to execute osascript: %w", err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// osascript prints failures as "<range>: execution error: <message> (<code>)"
var scriptErrorPattern = regexp.MustCompile(`(?s)^(.*?)\s*\((-?\d+)\)\s*$`)

// parseScriptError converts osascript stderr into a ScriptError
func parseScriptError(stderr string) *ScriptError {
	text := strings.TrimSpace(stderr)
	if text == "" {
		return &ScriptError{Message: "osascript exited without output"}
	}

	if i := strings.Index(text, "execution error:"); i >= 0 {
		text = strings.TrimSpace(text[i+len("execution error:"):])
	}

	m := scriptErrorPattern.FindStringSubmatch(text)
	if m == nil {
		return &ScriptError{Message: text}
	}

	code, err := strconv.Atoi(m[2])
	if err != nil {
		return &ScriptError{Message: text}
	}

	return &ScriptError{Code: code, Message: m[1]}
}
