package orchestrator

import (
	"context"
	"time"

	"github.com/jfmyers9/cadence/internal/playback"
)

// TogglePlayPause flips IsPlaying immediately and then sends the command.
// If the command fails the previous state is restored exactly.
func (o *Orchestrator) TogglePlayPause(ctx context.Context) error {
	o.commands.Lock()
	defer o.commands.Unlock()

	var previous playback.State
	o.update(func(s *Snapshot) {
		previous = s.Current
		s.Current = previous.WithPlaying(!previous.IsPlaying).Normalize()
		s.LastError = nil
	})

	if err := o.svc.Execute(ctx, playback.CommandTogglePlayPause); err != nil {
		o.update(func(s *Snapshot) {
			s.Current = previous
			if !isCancellation(err) {
				s.LastError = err
			}
		})
		o.logger.Debug().Err(err).Msg("Toggle failed, state restored")
		return err
	}
	return nil
}

// Play starts playback and refreshes
func (o *Orchestrator) Play(ctx context.Context) error {
	return o.executeThenRefresh(ctx, playback.CommandPlay, 0)
}

// Pause pauses playback and refreshes
func (o *Orchestrator) Pause(ctx context.Context) error {
	return o.executeThenRefresh(ctx, playback.CommandPause, 0)
}

// NextTrack skips forward and refreshes once the player has settled
func (o *Orchestrator) NextTrack(ctx context.Context) error {
	return o.executeThenRefresh(ctx, playback.CommandNextTrack, o.opts.TrackSettle)
}

// PreviousTrack skips back and refreshes once the player has settled
func (o *Orchestrator) PreviousTrack(ctx context.Context) error {
	return o.executeThenRefresh(ctx, playback.CommandPreviousTrack, o.opts.TrackSettle)
}

func (o *Orchestrator) executeThenRefresh(ctx context.Context, cmd playback.Command, settle time.Duration) error {
	o.commands.Lock()
	defer o.commands.Unlock()

	o.clearError()
	if err := o.svc.Execute(ctx, cmd); err != nil {
		o.fail(err)
		o.logger.Debug().Err(err).Str("command", cmd.String()).Msg("Command failed")
		return err
	}

	if settle > 0 {
		t := time.NewTimer(settle)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	return o.Refresh(ctx)
}
