package spotify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/jfmyers9/cadence/internal/playback"
	"github.com/jfmyers9/cadence/internal/resolve"
	"github.com/rs/zerolog"
)

// MPRIS names used by the Linux Spotify client
const (
	DefaultMPRISName = "org.mpris.MediaPlayer2.spotify"
	mprisPath        = "/org/mpris/MediaPlayer2"
	mprisPlayer      = "org.mpris.MediaPlayer2.Player"
)

// BusClient is the slice of the session bus MPRISClient needs
type BusClient interface {
	// GetNameOwner returns the unique name owning a well-known name
	GetNameOwner(name string) (string, error)

	// GetProperty reads one property, named interface.Property, from an
	// object. It gives up when ctx is done.
	GetProperty(ctx context.Context, dest, path, prop string) (dbus.Variant, error)

	// Call invokes a method with no arguments and no reply
	Call(ctx context.Context, dest, path, method string) error

	// Close closes the connection
	Close() error
}

// SessionBus implements BusClient on the user's session bus
type SessionBus struct {
	conn *dbus.Conn
}

// NewSessionBus connects to the session bus
func NewSessionBus() (*SessionBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &SessionBus{conn: conn}, nil
}

// GetNameOwner returns the unique name that owns name
func (b *SessionBus) GetNameOwner(name string) (string, error) {
	var owner string
	err := b.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, name).Store(&owner)
	return owner, err
}

// GetProperty reads prop from the object at dest/path through
// org.freedesktop.DBus.Properties.Get
func (b *SessionBus) GetProperty(ctx context.Context, dest, path, prop string) (dbus.Variant, error) {
	i := strings.LastIndex(prop, ".")
	if i < 0 {
		return dbus.Variant{}, fmt.Errorf("property %q has no interface", prop)
	}

	var v dbus.Variant
	err := b.conn.Object(dest, dbus.ObjectPath(path)).
		CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, prop[:i], prop[i+1:]).
		Store(&v)
	return v, err
}

// Call invokes method on the object at dest/path
func (b *SessionBus) Call(ctx context.Context, dest, path, method string) error {
	return b.conn.Object(dest, dbus.ObjectPath(path)).CallWithContext(ctx, method, 0).Err
}

// Close closes the bus connection
func (b *SessionBus) Close() error {
	return b.conn.Close()
}

// MPRISClient implements Bridge for players exposing MPRIS on D-Bus. There
// is no automation permission on this path.
type MPRISClient struct {
	bus     BusClient
	name    string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewMPRISClient creates a client for the MPRIS player at name
func NewMPRISClient(bus BusClient, name string, timeout time.Duration, logger zerolog.Logger) *MPRISClient {
	if name == "" {
		name = DefaultMPRISName
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &MPRISClient{
		bus:     bus,
		name:    name,
		timeout: timeout,
		logger:  logger.With().Str("component", "mpris").Logger(),
	}
}

// IsRunning reports whether the player owns its bus name
func (c *MPRISClient) IsRunning() bool {
	owner, err := c.bus.GetNameOwner(c.name)
	return err == nil && owner != ""
}

// FetchState reads PlaybackStatus, Metadata and Position
func (c *MPRISClient) FetchState(ctx context.Context) (playback.State, error) {
	if !c.IsRunning() {
		return playback.Disconnected(), nil
	}

	state, err := resolve.Call(ctx, c.timeout, c.readState)
	if err != nil {
		return playback.State{}, c.classify(err)
	}
	return state, nil
}

func (c *MPRISClient) readState(ctx context.Context) (playback.State, error) {
	statusVar, err := c.bus.GetProperty(ctx, c.name, mprisPath, mprisPlayer+".PlaybackStatus")
	if err != nil {
		return playback.State{}, err
	}
	status, ok := statusVar.Value().(string)
	if !ok {
		return playback.State{}, playback.InvalidResponse("PlaybackStatus is not a string")
	}

	if status == "Stopped" {
		idle := playback.Idle()
		idle.TrackName = playback.NotPlayingPlaceholder
		return idle, nil
	}

	metaVar, err := c.bus.GetProperty(ctx, c.name, mprisPath, mprisPlayer+".Metadata")
	if err != nil {
		return playback.State{}, err
	}
	meta, ok := metaVar.Value().(map[string]dbus.Variant)
	if !ok {
		return playback.State{}, playback.InvalidResponse("Metadata is not a dictionary")
	}

	// Position is optional; some players refuse it while paused
	var positionUs int64
	if posVar, err := c.bus.GetProperty(ctx, c.name, mprisPath, mprisPlayer+".Position"); err == nil {
		positionUs, _ = variantInt64(posVar)
	}

	lengthUs, _ := variantInt64(meta["mpris:length"])

	state := playback.State{
		IsPlaying:       status == "Playing",
		TrackName:       variantString(meta["xesam:title"]),
		ArtistName:      strings.Join(variantStrings(meta["xesam:artist"]), ", "),
		AlbumName:       variantString(meta["xesam:album"]),
		ArtworkURL:      parseArtwork(variantString(meta["mpris:artUrl"])),
		DurationSeconds: int(lengthUs / int64(time.Second/time.Microsecond)),
		PositionSeconds: int(positionUs / int64(time.Second/time.Microsecond)),
		IsConnected:     true,
	}
	return state.Normalize(), nil
}

// Execute calls the matching org.mpris.MediaPlayer2.Player method
func (c *MPRISClient) Execute(ctx context.Context, cmd playback.Command) error {
	method, err := mprisMethod(cmd)
	if err != nil {
		return err
	}

	if !c.IsRunning() {
		return playback.NotRunning()
	}

	err = resolve.Run(ctx, c.timeout, func(ctx context.Context) error {
		return c.bus.Call(ctx, c.name, mprisPath, mprisPlayer+"."+method)
	})
	if err != nil {
		return c.classify(err)
	}
	c.logger.Debug().Str("command", cmd.String()).Msg("Command sent")
	return nil
}

func mprisMethod(cmd playback.Command) (string, error) {
	switch cmd {
	case playback.CommandPlay:
		return "Play", nil
	case playback.CommandPause:
		return "Pause", nil
	case playback.CommandTogglePlayPause:
		return "PlayPause", nil
	case playback.CommandNextTrack:
		return "Next", nil
	case playback.CommandPreviousTrack:
		return "Previous", nil
	default:
		return "", fmt.Errorf("unknown playback command %d", int(cmd))
	}
}

func (c *MPRISClient) classify(err error) error {
	var se *playback.ServiceError
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return playback.ConnectionFailed(fmt.Sprintf("no reply within %s", c.timeout), err)
	case errors.As(err, &se):
		return se
	}

	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return playback.ScriptFailed(fmt.Sprintf("%s: %v", dbusErr.Name, dbusErr.Body), err)
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return playback.ScriptFailed(fmt.Sprintf("%s: %v", dbusErrPtr.Name, dbusErrPtr.Body), err)
	}
	return playback.ScriptFailed(err.Error(), err)
}

func variantString(v dbus.Variant) string {
	s, _ := v.Value().(string)
	return s
}

func variantStrings(v dbus.Variant) []string {
	switch val := v.Value().(type) {
	case []string:
		return val
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return nil
	}
}

func variantInt64(v dbus.Variant) (int64, bool) {
	switch val := v.Value().(type) {
	case int64:
		return val, true
	case uint64:
		return int64(val), true
	case int32:
		return int64(val), true
	case uint32:
		return int64(val), true
	case float64:
		return int64(val), true
	default:
		return 0, false
	}
}
