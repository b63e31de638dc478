package orchestrator

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jfmyers9/cadence/internal/playback"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	mu       sync.Mutex
	state    playback.State
	fetchErr error
	execErr  error
	// execErrs is consumed one per Execute call before falling back to execErr
	execErrs []error
	executed []playback.Command
	fetches  int
	starts   int
	stops    int
	interval time.Duration
	onUpdate func(playback.State)

	// onExecute runs before Execute returns
	onExecute func()
}

func (s *fakeService) FetchState(ctx context.Context) (playback.State, error) {
	if err := ctx.Err(); err != nil {
		return playback.State{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return s.state, s.fetchErr
}

func (s *fakeService) Execute(ctx context.Context, cmd playback.Command) error {
	if s.onExecute != nil {
		s.onExecute()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, cmd)
	if len(s.execErrs) > 0 {
		err := s.execErrs[0]
		s.execErrs = s.execErrs[1:]
		return err
	}
	return s.execErr
}

func (s *fakeService) StartPolling(interval time.Duration, onUpdate func(playback.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	s.interval = interval
	s.onUpdate = onUpdate
}

func (s *fakeService) StopPolling() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.onUpdate = nil
}

func (s *fakeService) counts() (starts, stops, fetches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops, s.fetches
}

func (s *fakeService) deliver(state playback.State) {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

type fakePermissions struct {
	mu         sync.Mutex
	status     playback.PermissionStatus
	statusErr  error
	grant      bool
	requestErr error

	// gate, when set, holds Status until closed
	gate chan struct{}

	statusCalls  atomic.Int32
	requestCalls atomic.Int32
	opened       atomic.Int32
}

func (p *fakePermissions) Status(ctx context.Context) (playback.PermissionStatus, error) {
	p.statusCalls.Add(1)
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return playback.PermissionNotDetermined, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.statusErr
}

func (p *fakePermissions) Request(context.Context) (bool, error) {
	p.requestCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grant, p.requestErr
}

func (p *fakePermissions) OpenSystemSettings() { p.opened.Add(1) }

func (p *fakePermissions) set(status playback.PermissionStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

func track() playback.State {
	art, _ := url.Parse("https://i.scdn.co/image/ab67")
	return playback.State{
		IsPlaying:       true,
		TrackName:       "Bohemian Rhapsody",
		ArtistName:      "Queen",
		AlbumName:       "A Night at the Opera",
		ArtworkURL:      art,
		DurationSeconds: 354,
		PositionSeconds: 127,
		IsConnected:     true,
	}
}

func newTestOrchestrator(svc *fakeService, perms *fakePermissions) *Orchestrator {
	return New(svc, perms, Options{PollInterval: 250 * time.Millisecond, TrackSettle: time.Millisecond}, zerolog.Nop())
}

func TestNew_StartsIdleAndDisconnected(t *testing.T) {
	o := newTestOrchestrator(&fakeService{}, &fakePermissions{})
	snap := o.Snapshot()

	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.True(t, snap.Current.Equal(playback.Disconnected()))
	assert.NoError(t, snap.LastError)
	assert.False(t, o.HasPermissionError())
}

func TestStartPolling_Authorized(t *testing.T) {
	svc := &fakeService{}
	perms := &fakePermissions{status: playback.PermissionAuthorized}
	o := newTestOrchestrator(svc, perms)

	require.NoError(t, o.StartPolling(context.Background()))

	snap := o.Snapshot()
	assert.True(t, snap.IsPolling())
	assert.Equal(t, playback.PermissionAuthorized, snap.PermissionStatus)
	assert.Equal(t, int32(0), perms.requestCalls.Load())
	starts, _, _ := svc.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 250*time.Millisecond, svc.interval)

	svc.deliver(track())
	assert.True(t, o.Snapshot().Current.Equal(track()))
}

func TestStartPolling_DeniedNeverPrompts(t *testing.T) {
	svc := &fakeService{}
	perms := &fakePermissions{status: playback.PermissionDenied, grant: true}
	o := newTestOrchestrator(svc, perms)

	err := o.StartPolling(context.Background())

	assert.ErrorIs(t, err, ErrPermissionDenied)
	snap := o.Snapshot()
	assert.True(t, snap.IsBlockedByPermission())
	assert.False(t, snap.IsPolling())
	assert.ErrorIs(t, snap.LastError, ErrPermissionDenied)
	assert.Equal(t, int32(0), perms.requestCalls.Load(), "denied status must not prompt")
	starts, _, _ := svc.counts()
	assert.Equal(t, 0, starts)
	assert.True(t, o.HasPermissionError())
}

func TestStartPolling_Restricted(t *testing.T) {
	perms := &fakePermissions{status: playback.PermissionRestricted}
	o := newTestOrchestrator(&fakeService{}, perms)

	err := o.StartPolling(context.Background())

	assert.ErrorIs(t, err, ErrPermissionRestricted)
	assert.True(t, o.Snapshot().IsBlockedByPermission())
	assert.Equal(t, int32(0), perms.requestCalls.Load())
}

func TestStartPolling_NotDeterminedPromptsOnce(t *testing.T) {
	t.Run("granted", func(t *testing.T) {
		svc := &fakeService{}
		perms := &fakePermissions{status: playback.PermissionNotDetermined, grant: true}
		o := newTestOrchestrator(svc, perms)

		require.NoError(t, o.StartPolling(context.Background()))

		assert.Equal(t, int32(1), perms.requestCalls.Load())
		assert.True(t, o.Snapshot().IsPolling())
		assert.Equal(t, playback.PermissionAuthorized, o.Snapshot().PermissionStatus)
	})

	t.Run("refused", func(t *testing.T) {
		svc := &fakeService{}
		perms := &fakePermissions{status: playback.PermissionNotDetermined, grant: false}
		o := newTestOrchestrator(svc, perms)

		err := o.StartPolling(context.Background())

		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.Equal(t, int32(1), perms.requestCalls.Load())
		snap := o.Snapshot()
		assert.True(t, snap.IsBlockedByPermission())
		assert.Equal(t, playback.PermissionDenied, snap.PermissionStatus)
		starts, _, _ := svc.counts()
		assert.Equal(t, 0, starts)
	})
}

func TestStartPolling_TwiceStartsOnce(t *testing.T) {
	svc := &fakeService{}
	perms := &fakePermissions{status: playback.PermissionAuthorized}
	o := newTestOrchestrator(svc, perms)

	require.NoError(t, o.StartPolling(context.Background()))
	require.NoError(t, o.StartPolling(context.Background()))

	starts, _, _ := svc.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, int32(1), perms.statusCalls.Load())
}

func TestStartPolling_NoOpWhileInGate(t *testing.T) {
	svc := &fakeService{}
	perms := &fakePermissions{status: playback.PermissionAuthorized, gate: make(chan struct{})}
	o := newTestOrchestrator(svc, perms)

	firstDone := make(chan error, 1)
	go func() { firstDone <- o.StartPolling(context.Background()) }()

	require.Eventually(t, func() bool {
		return o.Snapshot().Phase == PhasePermissionGate
	}, time.Second, time.Millisecond)

	require.NoError(t, o.StartPolling(context.Background()))
	close(perms.gate)
	require.NoError(t, <-firstDone)

	starts, _, _ := svc.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, int32(1), perms.statusCalls.Load())
	assert.True(t, o.Snapshot().IsPolling())
}

func TestStartPolling_CancelledGateReturnsToIdle(t *testing.T) {
	perms := &fakePermissions{status: playback.PermissionAuthorized, gate: make(chan struct{})}
	o := newTestOrchestrator(&fakeService{}, perms)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.StartPolling(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	snap := o.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.NoError(t, snap.LastError)
}

func TestStopPolling(t *testing.T) {
	svc := &fakeService{}
	o := newTestOrchestrator(svc, &fakePermissions{status: playback.PermissionAuthorized})

	o.StopPolling()
	_, stops, _ := svc.counts()
	assert.Equal(t, 0, stops, "stop while idle is a no-op")

	require.NoError(t, o.StartPolling(context.Background()))
	o.StopPolling()
	o.StopPolling()

	_, stops, _ = svc.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, PhaseIdle, o.Snapshot().Phase)

	require.NoError(t, o.StartPolling(context.Background()))
	starts, _, _ := svc.counts()
	assert.Equal(t, 2, starts)
}

func TestRetryAfterPermissionGranted(t *testing.T) {
	t.Run("authorized starts polling", func(t *testing.T) {
		svc := &fakeService{}
		perms := &fakePermissions{status: playback.PermissionDenied}
		o := newTestOrchestrator(svc, perms)
		require.Error(t, o.StartPolling(context.Background()))

		perms.set(playback.PermissionAuthorized)
		require.NoError(t, o.RetryAfterPermissionGranted(context.Background()))

		snap := o.Snapshot()
		assert.True(t, snap.IsPolling())
		assert.False(t, snap.IsBlockedByPermission())
		assert.NoError(t, snap.LastError)
		assert.Equal(t, int32(0), perms.requestCalls.Load())
	})

	t.Run("undetermined prompts once more", func(t *testing.T) {
		svc := &fakeService{}
		perms := &fakePermissions{status: playback.PermissionRestricted}
		o := newTestOrchestrator(svc, perms)
		require.Error(t, o.StartPolling(context.Background()))

		perms.set(playback.PermissionNotDetermined)
		perms.grant = true
		require.NoError(t, o.RetryAfterPermissionGranted(context.Background()))

		assert.Equal(t, int32(1), perms.requestCalls.Load())
		assert.True(t, o.Snapshot().IsPolling())
	})

	t.Run("still denied stays blocked", func(t *testing.T) {
		svc := &fakeService{}
		perms := &fakePermissions{status: playback.PermissionDenied}
		o := newTestOrchestrator(svc, perms)
		require.Error(t, o.StartPolling(context.Background()))

		err := o.RetryAfterPermissionGranted(context.Background())

		assert.ErrorIs(t, err, ErrPermissionDenied)
		snap := o.Snapshot()
		assert.True(t, snap.IsBlockedByPermission())
		assert.ErrorIs(t, snap.LastError, ErrPermissionDenied)
		assert.Equal(t, int32(0), perms.requestCalls.Load())
		starts, _, _ := svc.counts()
		assert.Equal(t, 0, starts)
	})
}

func TestPermissionPassThroughs(t *testing.T) {
	perms := &fakePermissions{status: playback.PermissionDenied}
	o := newTestOrchestrator(&fakeService{}, perms)

	status, err := o.CheckPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, playback.PermissionDenied, status)
	assert.Equal(t, playback.PermissionDenied, o.Snapshot().PermissionStatus)

	perms.grant = true
	granted, err := o.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, playback.PermissionAuthorized, o.Snapshot().PermissionStatus)

	perms.grant = false
	granted, err = o.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.False(t, granted)
	assert.ErrorIs(t, o.Snapshot().LastError, ErrPermissionDenied)

	o.OpenSystemSettings()
	assert.Equal(t, int32(1), perms.opened.Load())
}

func TestRefresh(t *testing.T) {
	t.Run("success replaces current", func(t *testing.T) {
		svc := &fakeService{state: track()}
		o := newTestOrchestrator(svc, &fakePermissions{})

		require.NoError(t, o.Refresh(context.Background()))
		assert.True(t, o.Snapshot().Current.Equal(track()))
	})

	t.Run("error degrades to disconnected", func(t *testing.T) {
		svc := &fakeService{state: track()}
		o := newTestOrchestrator(svc, &fakePermissions{})
		require.NoError(t, o.Refresh(context.Background()))

		svc.fetchErr = playback.ConnectionFailed("no reply", nil)
		err := o.Refresh(context.Background())

		assert.ErrorIs(t, err, playback.ErrConnectionFailed)
		snap := o.Snapshot()
		assert.True(t, snap.Current.Equal(playback.Disconnected()))
		assert.ErrorIs(t, snap.LastError, playback.ErrConnectionFailed)
	})

	t.Run("cancelled leaves state untouched", func(t *testing.T) {
		svc := &fakeService{state: track()}
		o := newTestOrchestrator(svc, &fakePermissions{})
		require.NoError(t, o.Refresh(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := o.Refresh(ctx)

		assert.ErrorIs(t, err, context.Canceled)
		snap := o.Snapshot()
		assert.True(t, snap.Current.Equal(track()))
		assert.NoError(t, snap.LastError)
	})
}

func TestTogglePlayPause_Optimistic(t *testing.T) {
	svc := &fakeService{state: track()}
	o := newTestOrchestrator(svc, &fakePermissions{})
	require.NoError(t, o.Refresh(context.Background()))

	var during playback.State
	svc.onExecute = func() { during = o.Snapshot().Current }

	require.NoError(t, o.TogglePlayPause(context.Background()))

	want := track()
	want.IsPlaying = false
	assert.True(t, during.Equal(want), "optimistic state must be visible while the command is in flight")
	assert.True(t, o.Snapshot().Current.Equal(want))
	assert.Equal(t, []playback.Command{playback.CommandTogglePlayPause}, svc.executed)
}

func TestTogglePlayPause_RollbackOnFailure(t *testing.T) {
	svc := &fakeService{state: track()}
	o := newTestOrchestrator(svc, &fakePermissions{})
	require.NoError(t, o.Refresh(context.Background()))
	before := o.Snapshot().Current

	svc.execErr = playback.ScriptFailed("Spotify got an error (-1708)", nil)
	err := o.TogglePlayPause(context.Background())

	require.ErrorIs(t, err, playback.ErrScriptExecutionFailed)
	after := o.Snapshot().Current
	assert.Equal(t, before.IsPlaying, after.IsPlaying)
	assert.Equal(t, before.TrackName, after.TrackName)
	assert.Equal(t, before.ArtistName, after.ArtistName)
	assert.Equal(t, before.AlbumName, after.AlbumName)
	assert.Equal(t, before.Artwork(), after.Artwork())
	assert.Equal(t, before.DurationSeconds, after.DurationSeconds)
	assert.Equal(t, before.PositionSeconds, after.PositionSeconds)
	assert.Equal(t, before.IsConnected, after.IsConnected)
	assert.ErrorIs(t, o.Snapshot().LastError, playback.ErrScriptExecutionFailed)
}

func TestTogglePlayPause_DisconnectedStaysDisconnected(t *testing.T) {
	svc := &fakeService{execErr: playback.NotRunning()}
	o := newTestOrchestrator(svc, &fakePermissions{})

	var during playback.State
	svc.onExecute = func() { during = o.Snapshot().Current }

	assert.ErrorIs(t, o.TogglePlayPause(context.Background()), playback.ErrNotRunning)
	assert.True(t, during.Equal(playback.Disconnected()))
	assert.True(t, o.Snapshot().Current.Equal(playback.Disconnected()))
}

func TestPlayPause_RefreshAfterCommand(t *testing.T) {
	svc := &fakeService{state: track()}
	o := newTestOrchestrator(svc, &fakePermissions{})

	require.NoError(t, o.Play(context.Background()))
	require.NoError(t, o.Pause(context.Background()))

	_, _, fetches := svc.counts()
	assert.Equal(t, 2, fetches)
	assert.Equal(t, []playback.Command{playback.CommandPlay, playback.CommandPause}, svc.executed)
	assert.True(t, o.Snapshot().Current.Equal(track()))
}

func TestPlay_FailureSkipsRefresh(t *testing.T) {
	svc := &fakeService{execErr: playback.NotRunning()}
	o := newTestOrchestrator(svc, &fakePermissions{})

	err := o.Play(context.Background())

	assert.ErrorIs(t, err, playback.ErrNotRunning)
	_, _, fetches := svc.counts()
	assert.Equal(t, 0, fetches)
	assert.ErrorIs(t, o.Snapshot().LastError, playback.ErrNotRunning)
}

func TestNextTrack_WaitsBeforeRefresh(t *testing.T) {
	svc := &fakeService{state: track()}
	o := New(svc, &fakePermissions{}, Options{TrackSettle: 40 * time.Millisecond}, zerolog.Nop())

	start := time.Now()
	require.NoError(t, o.NextTrack(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	_, _, fetches := svc.counts()
	assert.Equal(t, 1, fetches)
	assert.Equal(t, []playback.Command{playback.CommandNextTrack}, svc.executed)
}

func TestPreviousTrack_CancelledDuringSettle(t *testing.T) {
	svc := &fakeService{state: track()}
	o := New(svc, &fakePermissions{}, Options{TrackSettle: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := o.PreviousTrack(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, _, fetches := svc.counts()
	assert.Equal(t, 0, fetches)
	assert.Equal(t, []playback.Command{playback.CommandPreviousTrack}, svc.executed)
}

func TestLastError_ClearedByNextAttempt(t *testing.T) {
	denied := playback.ScriptFailed("Not authorized to send Apple events to Spotify. (-1743)", nil)

	t.Run("refresh", func(t *testing.T) {
		svc := &fakeService{state: track(), fetchErr: denied}
		o := newTestOrchestrator(svc, &fakePermissions{})
		require.Error(t, o.Refresh(context.Background()))
		require.True(t, o.HasPermissionError())

		svc.mu.Lock()
		svc.fetchErr = nil
		svc.mu.Unlock()
		require.NoError(t, o.Refresh(context.Background()))

		assert.NoError(t, o.Snapshot().LastError)
		assert.False(t, o.HasPermissionError())
	})

	t.Run("toggle", func(t *testing.T) {
		svc := &fakeService{state: track(), execErrs: []error{playback.NotRunning()}}
		o := newTestOrchestrator(svc, &fakePermissions{})
		require.NoError(t, o.Refresh(context.Background()))
		require.ErrorIs(t, o.TogglePlayPause(context.Background()), playback.ErrNotRunning)

		var during error
		svc.onExecute = func() { during = o.Snapshot().LastError }
		require.NoError(t, o.TogglePlayPause(context.Background()))

		assert.NoError(t, during, "error must clear together with the optimistic flip")
		assert.NoError(t, o.Snapshot().LastError)
	})

	t.Run("play", func(t *testing.T) {
		svc := &fakeService{state: track(), execErrs: []error{denied}}
		o := newTestOrchestrator(svc, &fakePermissions{})
		require.Error(t, o.Play(context.Background()))
		require.True(t, o.HasPermissionError())

		require.NoError(t, o.Play(context.Background()))
		assert.NoError(t, o.Snapshot().LastError)
		assert.False(t, o.HasPermissionError())
	})

	t.Run("next keeps the error clear through the settle", func(t *testing.T) {
		svc := &fakeService{state: track(), execErrs: []error{denied}}
		o := newTestOrchestrator(svc, &fakePermissions{})
		require.Error(t, o.NextTrack(context.Background()))

		var during error
		svc.onExecute = func() { during = o.Snapshot().LastError }
		require.NoError(t, o.NextTrack(context.Background()))

		assert.NoError(t, during)
		assert.NoError(t, o.Snapshot().LastError)
	})

	t.Run("check permission", func(t *testing.T) {
		perms := &fakePermissions{grant: false}
		o := newTestOrchestrator(&fakeService{}, perms)
		granted, err := o.RequestPermission(context.Background())
		require.NoError(t, err)
		require.False(t, granted)
		require.ErrorIs(t, o.Snapshot().LastError, ErrPermissionDenied)

		perms.set(playback.PermissionAuthorized)
		status, err := o.CheckPermission(context.Background())

		require.NoError(t, err)
		assert.Equal(t, playback.PermissionAuthorized, status)
		assert.NoError(t, o.Snapshot().LastError)
		assert.False(t, o.HasPermissionError())
	})

	t.Run("request permission", func(t *testing.T) {
		svc := &fakeService{fetchErr: denied}
		perms := &fakePermissions{grant: true}
		o := newTestOrchestrator(svc, perms)
		require.Error(t, o.Refresh(context.Background()))

		granted, err := o.RequestPermission(context.Background())

		require.NoError(t, err)
		assert.True(t, granted)
		assert.NoError(t, o.Snapshot().LastError)
	})
}

func TestTogglePlayPause_OverlappingCallsSerialize(t *testing.T) {
	svc := &fakeService{state: track(), execErrs: []error{errors.New("first failed"), nil}}
	o := newTestOrchestrator(svc, &fakePermissions{})
	require.NoError(t, o.Refresh(context.Background()))
	before := o.Snapshot().Current

	sub := o.Subscribe()
	defer sub.Close()
	<-sub.Updates

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	svc.onExecute = func() {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
	}

	firstErr := make(chan error, 1)
	go func() { firstErr <- o.TogglePlayPause(context.Background()) }()
	<-entered

	secondErr := make(chan error, 1)
	go func() { secondErr <- o.TogglePlayPause(context.Background()) }()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "second toggle ran while the first was in flight")
	assert.False(t, o.Snapshot().Current.IsPlaying, "second toggle flipped before the first resolved")

	close(release)
	require.Error(t, <-firstErr)
	require.NoError(t, <-secondErr)

	var seen []playback.State
	for range 3 {
		select {
		case snap := <-sub.Updates:
			seen = append(seen, snap.Current)
		case <-time.After(time.Second):
			t.Fatalf("only %d updates received", len(seen))
		}
	}

	paused := before.WithPlaying(false)
	assert.True(t, seen[0].Equal(paused), "first optimistic flip")
	assert.True(t, seen[1].Equal(before), "rollback must restore the exact pre-call state")
	assert.True(t, seen[2].Equal(paused), "second flip starts from the restored state")
	assert.True(t, o.Snapshot().Current.Equal(paused))
	assert.NoError(t, o.Snapshot().LastError)
}

func TestHasPermissionError_FromLastError(t *testing.T) {
	svc := &fakeService{execErr: playback.ScriptFailed("Not authorized to send Apple events to Spotify. (-1743)", nil)}
	o := newTestOrchestrator(svc, &fakePermissions{status: playback.PermissionAuthorized})

	require.Error(t, o.Play(context.Background()))
	assert.True(t, o.HasPermissionError())

	svc.execErr = playback.ScriptFailed("Can't get current track. (-1728)", nil)
	require.Error(t, o.Play(context.Background()))
	assert.False(t, o.HasPermissionError())
}

func TestSubscribe(t *testing.T) {
	svc := &fakeService{state: track()}
	o := newTestOrchestrator(svc, &fakePermissions{})
	sub := o.Subscribe()

	initial := <-sub.Updates
	assert.Equal(t, PhaseIdle, initial.Phase)

	require.NoError(t, o.Refresh(context.Background()))
	select {
	case snap := <-sub.Updates:
		assert.True(t, snap.Current.Equal(track()))
	case <-time.After(time.Second):
		t.Fatal("no update after refresh")
	}

	sub.Close()
	sub.Close()

	select {
	case <-sub.Done:
	default:
		t.Fatal("Done not closed")
	}
	_, ok := <-sub.Updates
	assert.False(t, ok, "Updates should be closed")

	require.NoError(t, o.Refresh(context.Background()))
}

func TestSubscribe_SlowSubscriberGetsLatest(t *testing.T) {
	svc := &fakeService{}
	o := newTestOrchestrator(svc, &fakePermissions{})
	sub := o.Subscribe()
	defer sub.Close()

	for i := range subscriptionBuffer * 3 {
		svc.mu.Lock()
		svc.state = playback.State{IsConnected: true, TrackName: "t", PositionSeconds: i}
		svc.mu.Unlock()
		require.NoError(t, o.Refresh(context.Background()))
	}

	var last Snapshot
	for len(sub.Updates) > 0 {
		last = <-sub.Updates
	}
	assert.Equal(t, subscriptionBuffer*3-1, last.Current.PositionSeconds)
}

func TestNoOperationPanicsOnBackendErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := &fakeService{fetchErr: boom, execErr: boom}
	perms := &fakePermissions{statusErr: boom, requestErr: boom}
	o := newTestOrchestrator(svc, perms)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		_ = o.StartPolling(ctx)
		_ = o.RetryAfterPermissionGranted(ctx)
		_, _ = o.CheckPermission(ctx)
		_, _ = o.RequestPermission(ctx)
		_ = o.Refresh(ctx)
		_ = o.TogglePlayPause(ctx)
		_ = o.Play(ctx)
		_ = o.NextTrack(ctx)
		o.StopPolling()
	})
	assert.ErrorIs(t, o.Snapshot().LastError, boom)
}
