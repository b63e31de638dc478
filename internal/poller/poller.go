// Package poller republishes the player's state at a fixed cadence.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/jfmyers9/cadence/internal/playback"
	"github.com/rs/zerolog"
)

// Fetcher returns the player's current state
type Fetcher interface {
	FetchState(ctx context.Context) (playback.State, error)
}

// UpdateFunc receives every polled state
type UpdateFunc func(playback.State)

// Scheduler polls a Fetcher at regular intervals. At most one polling loop
// runs at a time.
type Scheduler struct {
	fetcher Fetcher
	logger  zerolog.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	onUpdate   UpdateFunc
	generation uint64
	done       chan struct{}
}

// New creates a Scheduler for fetcher
func New(fetcher Fetcher, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "poller").Logger(),
	}
}

// Start begins polling every interval and delivers each result to onUpdate.
// The first fetch happens immediately. Calling Start while running is a no-op.
// Fetch errors are delivered as the disconnected state.
//
// onUpdate runs on the polling goroutine and must not call Start or Stop.
func (s *Scheduler) Start(interval time.Duration, onUpdate UpdateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	s.generation++
	gen := s.generation

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.onUpdate = onUpdate
	s.done = make(chan struct{})

	s.logger.Info().
		Dur("interval", interval).
		Msg("Starting poller")

	go s.run(ctx, gen, interval, s.done)
}

// Stop cancels the polling loop. A fetch already in flight may complete, but
// its result is discarded. Calling Stop while stopped is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}

	s.cancel()
	s.cancel = nil
	s.onUpdate = nil
	s.generation++

	s.logger.Info().Msg("Poller stopped")
}

// Running reports whether a polling loop is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Wait blocks until the most recently started loop has exited
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (s *Scheduler) run(ctx context.Context, gen uint64, interval time.Duration, done chan struct{}) {
	defer close(done)

	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Poll immediately on start
	s.poll(ctx, gen)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, gen)
		}
	}
}

// poll fetches once and delivers the result if this loop is still current
func (s *Scheduler) poll(ctx context.Context, gen uint64) {
	state, err := s.fetcher.FetchState(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Debug().Err(err).Msg("Error fetching player state")
		state = playback.Disconnected()
	}

	s.deliver(gen, state)
}

// deliver holds the lock across the callback so Stop cannot return while a
// stale delivery is still running
func (s *Scheduler) deliver(gen uint64, state playback.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.onUpdate == nil {
		return
	}

	s.logger.Debug().
		Str("track", state.TrackName).
		Bool("playing", state.IsPlaying).
		Bool("connected", state.IsConnected).
		Msg("Poll update")

	s.onUpdate(state)
}
