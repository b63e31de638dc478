package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jfmyers9/cadence/internal/journal"
	"github.com/jfmyers9/cadence/internal/orchestrator"
	"github.com/jfmyers9/cadence/internal/playback"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	mu      sync.Mutex
	state   playback.State
	stopped bool
}

func (s *stubService) FetchState(context.Context) (playback.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *stubService) Execute(context.Context, playback.Command) error { return nil }

func (s *stubService) StartPolling(_ time.Duration, onUpdate func(playback.State)) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	onUpdate(state)
}

func (s *stubService) StopPolling() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

type stubPermissions struct {
	status playback.PermissionStatus
}

func (p stubPermissions) Status(context.Context) (playback.PermissionStatus, error) {
	return p.status, nil
}
func (p stubPermissions) Request(context.Context) (bool, error) { return false, nil }
func (p stubPermissions) OpenSystemSettings()                   {}

func playing() playback.State {
	return playback.State{
		IsPlaying:       true,
		TrackName:       "Song",
		ArtistName:      "Artist",
		AlbumName:       "Album",
		DurationSeconds: 200,
		PositionSeconds: 50,
		IsConnected:     true,
	}
}

func newTestDaemon(t *testing.T, svc *stubService, perms stubPermissions) (*Daemon, string) {
	t.Helper()
	dir := t.TempDir()
	orch := orchestrator.New(svc, perms, orchestrator.Options{}, zerolog.Nop())
	d, err := New(Config{
		SnapshotFile: filepath.Join(dir, "snapshot.json"),
		JournalDB:    ":memory:",
	}, orch, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.journal.Close() })
	return d, d.config.SnapshotFile
}

func runDaemon(t *testing.T, d *Daemon) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("daemon did not stop")
		}
	}
}

func TestRun_PublishesSnapshot(t *testing.T) {
	svc := &stubService{state: playing()}
	d, path := newTestDaemon(t, svc, stubPermissions{status: playback.PermissionAuthorized})

	stop := runDaemon(t, d)

	require.Eventually(t, func() bool {
		r, err := ReadSnapshot(path)
		return err == nil && r.Phase == orchestrator.PhasePolling.String() && r.TrackName == "Song"
	}, time.Second, 5*time.Millisecond)

	stop()

	svc.mu.Lock()
	assert.True(t, svc.stopped, "polling should stop with the daemon")
	svc.mu.Unlock()

	r, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.True(t, r.State().Equal(playing()))
	assert.Equal(t, "authorized", r.Permission)
	assert.False(t, r.PermissionError)

	entries, err := d.journal.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, journal.KindPermission, entries[0].Kind)
	assert.Equal(t, "authorized", entries[0].Detail)
}

func TestRun_DeniedIsJournaled(t *testing.T) {
	d, path := newTestDaemon(t, &stubService{}, stubPermissions{status: playback.PermissionDenied})

	stop := runDaemon(t, d)
	require.Eventually(t, func() bool {
		r, err := ReadSnapshot(path)
		return err == nil && r.PermissionError && r.Phase == orchestrator.PhaseBlockedByPermission.String()
	}, time.Second, 5*time.Millisecond)
	stop()

	r, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.NotEmpty(t, r.LastError)
	assert.False(t, r.IsConnected)

	entries, err := d.journal.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "denied", entries[0].Detail)
	assert.NotEmpty(t, entries[0].Err)
}

func TestShutdown_RemovesSnapshot(t *testing.T) {
	svc := &stubService{state: playing()}
	dir := t.TempDir()
	orch := orchestrator.New(svc, stubPermissions{status: playback.PermissionAuthorized}, orchestrator.Options{}, zerolog.Nop())
	d, err := New(Config{
		SnapshotFile: filepath.Join(dir, "snapshot.json"),
		JournalDB:    filepath.Join(dir, "journal.db"),
	}, orch, zerolog.Nop())
	require.NoError(t, err)

	stop := runDaemon(t, d)
	require.Eventually(t, func() bool {
		_, err := ReadSnapshot(d.config.SnapshotFile)
		return err == nil
	}, time.Second, 5*time.Millisecond)
	stop()

	require.NoError(t, d.Shutdown())
	_, err = ReadSnapshot(d.config.SnapshotFile)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
