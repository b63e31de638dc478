// Package spotify talks to the Spotify desktop application: one blocking
// automation round-trip per call, with typed errors and a bounded wait.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jfmyers9/cadence/internal/playback"
	"github.com/jfmyers9/cadence/internal/resolve"
	"github.com/rs/zerolog"
)

// DefaultCallTimeout bounds one automation round-trip
const DefaultCallTimeout = 5 * time.Second

// Bridge is one automation round-trip against the player
type Bridge interface {
	// IsRunning reports whether the player process exists
	IsRunning() bool

	// FetchState returns the player's current state, or the disconnected
	// state if it is not running
	FetchState(ctx context.Context) (playback.State, error)

	// Execute sends one command to the player
	Execute(ctx context.Context, cmd playback.Command) error
}

// Options configures a Client
type Options struct {
	BundleID    string        // Application identifier for process lookups
	AppName     string        // Scripting name used in tell blocks
	CallTimeout time.Duration // Bound on each round-trip
}

func (o Options) withDefaults() Options {
	if o.BundleID == "" {
		o.BundleID = DefaultBundleID
	}
	if o.AppName == "" {
		o.AppName = DefaultAppName
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	return o
}

// Client implements Bridge over AppleScript
type Client struct {
	runner    Runner
	workspace Workspace
	opts      Options
	logger    zerolog.Logger
}

// NewClient creates a Client with explicit collaborators
func NewClient(runner Runner, workspace Workspace, opts Options, logger zerolog.Logger) *Client {
	return &Client{
		runner:    runner,
		workspace: workspace,
		opts:      opts.withDefaults(),
		logger:    logger.With().Str("component", "spotify").Logger(),
	}
}

// NewAppleScriptClient creates a Client backed by osascript and LaunchServices
func NewAppleScriptClient(opts Options, logger zerolog.Logger) *Client {
	return NewClient(OSAScript{}, LaunchServices{}, opts, logger)
}

// IsRunning checks the process list for the player
func (c *Client) IsRunning() bool {
	return c.workspace.IsRunning(c.opts.BundleID)
}

// FetchState queries the player. A player that is not running yields the
// disconnected state and no error.
func (c *Client) FetchState(ctx context.Context) (playback.State, error) {
	if !c.IsRunning() {
		return playback.Disconnected(), nil
	}

	reply, err := resolve.Call(ctx, c.opts.CallTimeout, func(ctx context.Context) (string, error) {
		return c.runner.Run(ctx, fetchScript(c.opts.AppName))
	})
	if err != nil {
		return playback.State{}, c.classify(err)
	}

	state, err := parseStateReply(reply)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Unparsable player reply")
		return playback.State{}, err
	}

	return state, nil
}

// Execute sends cmd to the player. It fails with NotRunning if the player
// is absent before the command is issued.
func (c *Client) Execute(ctx context.Context, cmd playback.Command) error {
	directive, err := cmd.Directive()
	if err != nil {
		return err
	}

	if !c.IsRunning() {
		return playback.NotRunning()
	}

	err = resolve.Run(ctx, c.opts.CallTimeout, func(ctx context.Context) error {
		_, err := c.runner.Run(ctx, commandScript(c.opts.AppName, directive))
		return err
	})
	if err != nil {
		return c.classify(err)
	}

	c.logger.Debug().Str("command", cmd.String()).Msg("Command sent")
	return nil
}

// classify maps a round-trip failure onto the ServiceError taxonomy.
// Caller cancellation passes through untouched.
func (c *Client) classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return playback.ConnectionFailed(
			fmt.Sprintf("no reply within %s", c.opts.CallTimeout), err)
	}

	var se *ScriptError
	if errors.As(err, &se) {
		return playback.ScriptFailed(se.Error(), se)
	}

	return playback.ConnectionFailed(err.Error(), err)
}

// fetchScript returns the player state as "stopped" or seven delimited fields
func fetchScript(app string) string {
	return fmt.Sprintf(`
tell application %q
	if player state is stopped then
		return "stopped"
	end if
	set t to current track
	set d to "|||"
	return (name of t) & d & (artist of t) & d & (album of t) & d & (artwork url of t) & d & (duration of t) & d & (player position) & d & (player state as string)
end tell`, app)
}

// commandScript sends a single directive with no reply expected
func commandScript(app, directive string) string {
	return fmt.Sprintf(`tell application %q to %s`, app, directive)
}
