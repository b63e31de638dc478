package spotify

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultBundleID identifies the Spotify desktop application
const DefaultBundleID = "com.spotify.client"

// DefaultAppName is the scripting name of the Spotify application
const DefaultAppName = "Spotify"

// processQueryTimeout bounds the synchronous process-list helpers
const processQueryTimeout = 2 * time.Second

// Workspace answers process-level questions about an application by its
// bundle identifier
type Workspace interface {
	// IsRunning reports whether an instance is in the process list
	IsRunning(bundleID string) bool

	// IsInstalled reports whether the application exists on disk
	IsInstalled(bundleID string) bool

	// Launch starts the application without bringing it to the foreground
	Launch(ctx context.Context, bundleID string) error

	// Open hands a URL to the OS, e.g. a settings deep link
	Open(ctx context.Context, url string) error
}

// LaunchServices implements Workspace with the macOS lsappinfo, mdfind and
// open tools
type LaunchServices struct{}

// IsRunning checks the process list for bundleID
func (LaunchServices) IsRunning(bundleID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), processQueryTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "lsappinfo", "info", "-only", "pid", "-app", bundleID).Output()
	if err != nil {
		return false
	}
	return parseLSAppInfoPID(string(out)) > 0
}

// parseLSAppInfoPID reads the pid from lsappinfo output such as `"pid"=1234`
func parseLSAppInfoPID(out string) int {
	_, value, ok := strings.Cut(strings.TrimSpace(out), "=")
	if !ok {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return pid
}

// IsInstalled asks Spotlight for an application bundle with bundleID
func (LaunchServices) IsInstalled(bundleID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), processQueryTimeout)
	defer cancel()

	query := fmt.Sprintf("kMDItemCFBundleIdentifier == '%s'", bundleID)
	out, err := exec.CommandContext(ctx, "mdfind", query).Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}

// Launch opens the application in the background (-g) so it does not steal focus
func (LaunchServices) Launch(ctx context.Context, bundleID string) error {
	out, err := exec.CommandContext(ctx, "open", "-g", "-b", bundleID).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("failed to launch %s: %s", bundleID, msg)
		}
		return fmt.Errorf("failed to launch %s: %w", bundleID, err)
	}
	return nil
}

// Open hands url to the default handler
func (LaunchServices) Open(ctx context.Context, url string) error {
	if err := exec.CommandContext(ctx, "open", url).Run(); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	return nil
}
