// Package orchestrator owns the observable playback state. It gates polling
// on automation permission, applies transport commands with optimistic
// updates, and fans every change out to subscribers.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jfmyers9/cadence/internal/playback"
	"github.com/rs/zerolog"
)

// Defaults for Options
const (
	DefaultPollInterval = time.Second
	DefaultTrackSettle  = 500 * time.Millisecond
)

// Errors recorded when the permission gate does not open
var (
	ErrPermissionDenied       = errors.New("automation permission denied; allow it in System Settings > Privacy & Security > Automation")
	ErrPermissionRestricted   = errors.New("automation permission is restricted by policy")
	ErrPermissionUndetermined = errors.New("automation permission could not be determined")
)

// Service is the player backend with its polling loop
type Service interface {
	FetchState(ctx context.Context) (playback.State, error)
	Execute(ctx context.Context, cmd playback.Command) error
	StartPolling(interval time.Duration, onUpdate func(playback.State))
	StopPolling()
}

// Permissions answers and requests automation consent
type Permissions interface {
	Status(ctx context.Context) (playback.PermissionStatus, error)
	Request(ctx context.Context) (bool, error)
	OpenSystemSettings()
}

// Options configures an Orchestrator
type Options struct {
	PollInterval time.Duration // Cadence handed to the service
	TrackSettle  time.Duration // Wait after next/previous before refreshing
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.TrackSettle < 0 {
		o.TrackSettle = 0
	}
	return o
}

// Orchestrator coordinates a Service and a Permissions source.
//
// Lock order: lifecycle, then mu. mu is never held while calling into the
// Service, since the polling callback takes mu from inside the scheduler.
type Orchestrator struct {
	svc    Service
	perms  Permissions
	opts   Options
	logger zerolog.Logger

	lifecycle sync.Mutex // serializes Service.StartPolling/StopPolling
	commands  sync.Mutex // serializes transport commands

	mu   sync.Mutex
	snap Snapshot
	subs map[*Subscription]struct{}
}

// New creates an Orchestrator in PhaseIdle with the disconnected state
func New(svc Service, perms Permissions, opts Options, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		svc:    svc,
		perms:  perms,
		opts:   opts.withDefaults(),
		logger: logger.With().Str("component", "orchestrator").Logger(),
		snap:   Snapshot{Current: playback.Disconnected()},
		subs:   make(map[*Subscription]struct{}),
	}
}

// Snapshot returns a copy of the observable state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// update applies fn to the state and publishes the result
func (o *Orchestrator) update(fn func(*Snapshot)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.snap)
	o.publishLocked()
}

func (o *Orchestrator) setPhase(s *Snapshot, phase Phase) {
	if s.Phase != phase {
		o.logger.Debug().
			Str("from", s.Phase.String()).
			Str("to", phase.String()).
			Msg("Phase changed")
	}
	s.Phase = phase
}

// fail records err as LastError unless it is a cancellation
func (o *Orchestrator) fail(err error) {
	if isCancellation(err) {
		return
	}
	o.update(func(s *Snapshot) { s.LastError = err })
}

// clearError drops LastError so it only ever describes the latest attempt
func (o *Orchestrator) clearError() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.snap.LastError == nil {
		return
	}
	o.snap.LastError = nil
	o.publishLocked()
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// StartPolling opens the permission gate and starts polling once it is
// granted. It blocks while the gate runs and is a no-op while polling or
// while another call is already in the gate. A denied gate leaves the
// orchestrator blocked; it is never retried automatically.
func (o *Orchestrator) StartPolling(ctx context.Context) error {
	return o.start(ctx, o.ensurePermission)
}

// start runs gate and begins polling if it passes
func (o *Orchestrator) start(ctx context.Context, gate func(context.Context) error) error {
	o.mu.Lock()
	if o.snap.Phase == PhasePolling || o.snap.Phase == PhasePermissionGate {
		o.mu.Unlock()
		return nil
	}
	o.snap.LastError = nil
	o.setPhase(&o.snap, PhasePermissionGate)
	o.publishLocked()
	o.mu.Unlock()

	o.logger.Info().Msg("Checking automation permission")

	if err := gate(ctx); err != nil {
		o.update(func(s *Snapshot) {
			if isCancellation(err) || ctx.Err() != nil {
				o.setPhase(s, PhaseIdle)
				return
			}
			s.LastError = err
			o.setPhase(s, PhaseBlockedByPermission)
		})
		if !isCancellation(err) {
			o.logger.Warn().Err(err).Msg("Polling blocked by permission")
		}
		return err
	}

	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	// The caller may have given up while the gate ran
	if err := ctx.Err(); err != nil {
		o.update(func(s *Snapshot) { o.setPhase(s, PhaseIdle) })
		return err
	}

	o.svc.StartPolling(o.opts.PollInterval, o.onPoll)
	o.update(func(s *Snapshot) { o.setPhase(s, PhasePolling) })
	o.logger.Info().Dur("interval", o.opts.PollInterval).Msg("Polling started")
	return nil
}

// StopPolling stops the service's polling loop. It is a no-op unless polling.
func (o *Orchestrator) StopPolling() {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	if o.snap.Phase != PhasePolling {
		o.mu.Unlock()
		return
	}
	o.setPhase(&o.snap, PhaseIdle)
	o.publishLocked()
	o.mu.Unlock()

	o.svc.StopPolling()
	o.logger.Info().Msg("Polling stopped")
}

func (o *Orchestrator) onPoll(state playback.State) {
	o.update(func(s *Snapshot) { s.Current = state })
}

// ensurePermission re-probes and prompts only when the user was never asked
func (o *Orchestrator) ensurePermission(ctx context.Context) error {
	status, err := o.perms.Status(ctx)
	if err != nil {
		return err
	}
	o.update(func(s *Snapshot) { s.PermissionStatus = status })

	switch status {
	case playback.PermissionAuthorized:
		return nil
	case playback.PermissionNotDetermined:
		return o.request(ctx)
	default:
		return permissionError(status)
	}
}

// request runs one consent prompt and records the answer
func (o *Orchestrator) request(ctx context.Context) error {
	granted, err := o.perms.Request(ctx)
	if err != nil {
		return err
	}
	if !granted {
		o.update(func(s *Snapshot) { s.PermissionStatus = playback.PermissionDenied })
		return ErrPermissionDenied
	}
	o.update(func(s *Snapshot) { s.PermissionStatus = playback.PermissionAuthorized })
	return nil
}

func permissionError(status playback.PermissionStatus) error {
	switch status {
	case playback.PermissionDenied:
		return ErrPermissionDenied
	case playback.PermissionRestricted:
		return ErrPermissionRestricted
	default:
		return ErrPermissionUndetermined
	}
}

// RetryAfterPermissionGranted re-probes after the user changed their mind in
// System Settings. Authorized starts polling; NotDetermined gets one more
// prompt; Denied and Restricted stay blocked.
func (o *Orchestrator) RetryAfterPermissionGranted(ctx context.Context) error {
	o.clearError()
	o.logger.Info().Msg("Retrying after permission change")

	status, err := o.perms.Status(ctx)
	if err != nil {
		o.fail(err)
		return err
	}
	o.update(func(s *Snapshot) { s.PermissionStatus = status })

	switch status {
	case playback.PermissionAuthorized:
	case playback.PermissionNotDetermined:
		if err := o.request(ctx); err != nil {
			o.block(err)
			return err
		}
	default:
		err := permissionError(status)
		o.block(err)
		return err
	}

	o.update(func(s *Snapshot) {
		if s.Phase == PhaseBlockedByPermission {
			o.setPhase(s, PhaseIdle)
		}
	})
	// The status was just settled; do not probe or prompt a second time
	return o.start(ctx, func(context.Context) error { return nil })
}

// block records a gate failure unless it is a cancellation. A polling
// orchestrator is left polling.
func (o *Orchestrator) block(err error) {
	if isCancellation(err) {
		return
	}
	o.update(func(s *Snapshot) {
		s.LastError = err
		if s.Phase != PhasePolling {
			o.setPhase(s, PhaseBlockedByPermission)
		}
	})
}

// CheckPermission probes the current status and records it
func (o *Orchestrator) CheckPermission(ctx context.Context) (playback.PermissionStatus, error) {
	o.clearError()
	status, err := o.perms.Status(ctx)
	if err != nil {
		o.fail(err)
		return status, err
	}
	o.update(func(s *Snapshot) { s.PermissionStatus = status })
	return status, nil
}

// RequestPermission prompts for consent and records the answer
func (o *Orchestrator) RequestPermission(ctx context.Context) (bool, error) {
	o.clearError()
	err := o.request(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrPermissionDenied):
		o.fail(err)
		return false, nil
	default:
		o.fail(err)
		return false, err
	}
}

// OpenSystemSettings opens the Automation privacy pane
func (o *Orchestrator) OpenSystemSettings() {
	o.perms.OpenSystemSettings()
}

// HasPermissionError reports whether the user needs to grant permission,
// either because the status is Denied or because the last failure looks
// like a permission rejection
func (o *Orchestrator) HasPermissionError() bool {
	return o.Snapshot().HasPermissionError()
}

// Refresh fetches once outside the polling cadence. A failure records
// LastError and degrades to the disconnected state; a fetch cancelled before
// it starts leaves everything untouched.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.clearError()

	state, err := o.svc.FetchState(ctx)
	if err != nil {
		if isCancellation(err) || ctx.Err() != nil {
			return err
		}
		o.update(func(s *Snapshot) {
			s.LastError = err
			s.Current = playback.Disconnected()
		})
		return err
	}

	o.update(func(s *Snapshot) { s.Current = state })
	return nil
}
