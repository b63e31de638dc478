package spotify

import (
	"context"
	"time"

	"github.com/jfmyers9/cadence/internal/playback"
	"github.com/jfmyers9/cadence/internal/poller"
	"github.com/rs/zerolog"
)

// Service pairs a Bridge with a polling Scheduler. It is what the
// orchestrator consumes.
type Service struct {
	bridge    Bridge
	scheduler *poller.Scheduler
}

// NewService creates a Service over bridge
func NewService(bridge Bridge, logger zerolog.Logger) *Service {
	return &Service{
		bridge:    bridge,
		scheduler: poller.New(bridge, logger),
	}
}

// FetchState performs one round-trip outside the polling cadence
func (s *Service) FetchState(ctx context.Context) (playback.State, error) {
	return s.bridge.FetchState(ctx)
}

// Execute sends cmd to the player
func (s *Service) Execute(ctx context.Context, cmd playback.Command) error {
	return s.bridge.Execute(ctx, cmd)
}

// StartPolling starts the scheduler; a no-op if it is already running
func (s *Service) StartPolling(interval time.Duration, onUpdate func(playback.State)) {
	s.scheduler.Start(interval, onUpdate)
}

// StopPolling stops the scheduler
func (s *Service) StopPolling() {
	s.scheduler.Stop()
}

// IsRunning reports whether the player process exists
func (s *Service) IsRunning() bool {
	return s.bridge.IsRunning()
}
