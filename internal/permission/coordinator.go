// Package permission tracks whether the user has allowed this process to
// automate the player, and drives the consent prompt when they have not
// been asked yet.
package permission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jfmyers9/cadence/internal/playback"
	"github.com/jfmyers9/cadence/internal/resolve"
	"github.com/jfmyers9/cadence/internal/spotify"
	"github.com/rs/zerolog"
)

// AutomationSettingsURL opens the Automation pane of Privacy & Security
const AutomationSettingsURL = "x-apple.systempreferences:com.apple.preference.security?Privacy_Automation"

// DefaultLaunchSettle is how long Request waits after launching the player
const DefaultLaunchSettle = 2 * time.Second

// settingsOpenTimeout bounds the fire-and-forget settings launch
const settingsOpenTimeout = 5 * time.Second

// Options configures a Coordinator
type Options struct {
	BundleID     string
	AppName      string
	CallTimeout  time.Duration
	LaunchSettle time.Duration
}

func (o Options) withDefaults() Options {
	if o.BundleID == "" {
		o.BundleID = spotify.DefaultBundleID
	}
	if o.AppName == "" {
		o.AppName = spotify.DefaultAppName
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = spotify.DefaultCallTimeout
	}
	if o.LaunchSettle < 0 {
		o.LaunchSettle = 0
	}
	return o
}

// Coordinator probes and requests automation consent over AppleScript
type Coordinator struct {
	runner    spotify.Runner
	workspace spotify.Workspace
	opts      Options
	logger    zerolog.Logger

	mu   sync.Mutex
	last playback.PermissionStatus
}

// New creates a Coordinator with explicit collaborators
func New(runner spotify.Runner, workspace spotify.Workspace, opts Options, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		runner:    runner,
		workspace: workspace,
		opts:      opts.withDefaults(),
		logger:    logger.With().Str("component", "permission").Logger(),
	}
}

// NewAppleScript creates a Coordinator backed by osascript and LaunchServices
func NewAppleScript(opts Options, logger zerolog.Logger) *Coordinator {
	return New(spotify.OSAScript{}, spotify.LaunchServices{}, opts, logger)
}

// Last returns the most recently observed status
func (c *Coordinator) Last() playback.PermissionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Coordinator) record(status playback.PermissionStatus) {
	c.mu.Lock()
	prev := c.last
	c.last = status
	c.mu.Unlock()

	if prev != status {
		c.logger.Info().
			Str("from", prev.String()).
			Str("to", status.String()).
			Msg("Permission status changed")
	}
}

// Status sends a harmless probe and classifies the outcome. A probe that
// cannot tell (player not running, unexpected error) yields NotDetermined.
func (c *Coordinator) Status(ctx context.Context) (playback.PermissionStatus, error) {
	probe := fmt.Sprintf("tell application %q to name", c.opts.AppName)

	_, err := resolve.Call(ctx, c.opts.CallTimeout, func(ctx context.Context) (string, error) {
		return c.runner.Run(ctx, probe)
	})
	if err != nil && ctx.Err() != nil {
		return playback.PermissionNotDetermined, ctx.Err()
	}

	status := classifyProbe(err)
	if err != nil {
		c.logger.Debug().Err(err).Str("status", status.String()).Msg("Permission probe failed")
	}
	c.record(status)
	return status, nil
}

func classifyProbe(err error) playback.PermissionStatus {
	if err == nil {
		return playback.PermissionAuthorized
	}
	// -600 (not running) and anything unexpected are inconclusive
	if spotify.ScriptErrorCode(err) == spotify.CodeNotAuthorized {
		return playback.PermissionDenied
	}
	return playback.PermissionNotDetermined
}

// Request makes the OS show the consent prompt by sending a real event
// from the caller's goroutine. The player is launched in the background
// first if needed. It returns false only on an explicit denial.
func (c *Coordinator) Request(ctx context.Context) (bool, error) {
	if !c.workspace.IsRunning(c.opts.BundleID) {
		c.logger.Info().Str("bundle", c.opts.BundleID).Msg("Launching player for permission request")
		if err := c.workspace.Launch(ctx, c.opts.BundleID); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to launch player")
		}
		if err := sleep(ctx, c.opts.LaunchSettle); err != nil {
			return false, err
		}
	}

	script := fmt.Sprintf("tell application %q to get name of current track", c.opts.AppName)
	_, err := c.runner.Run(ctx, script)
	if err != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}

	if spotify.ScriptErrorCode(err) == spotify.CodeNotAuthorized {
		c.record(playback.PermissionDenied)
		return false, nil
	}
	if err != nil {
		c.logger.Debug().Err(err).Msg("Permission request returned a non-denial error")
	}
	c.record(playback.PermissionAuthorized)
	return true, nil
}

// OpenSystemSettings opens the Automation privacy pane. It does not wait
// for the result; failures are logged.
func (c *Coordinator) OpenSystemSettings() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), settingsOpenTimeout)
		defer cancel()
		if err := c.OpenSettings(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to open System Settings")
		}
	}()
}

// OpenSettings opens the Automation privacy pane and waits for the opener
func (c *Coordinator) OpenSettings(ctx context.Context) error {
	if err := c.workspace.Open(ctx, AutomationSettingsURL); err != nil {
		return fmt.Errorf("failed to open System Settings: %w", err)
	}
	return nil
}

// IsTargetInstalled reports whether the player is installed
func (c *Coordinator) IsTargetInstalled() bool {
	return c.workspace.IsInstalled(c.opts.BundleID)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
