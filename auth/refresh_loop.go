package auth

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/ugate-admin/internal/errors"
	"github.com/rs/zerolog/log"
)

// startBackgroundLocked starts the periodic refresh. s.mu must be held and no
// loop may be running.
func (s *Service) startBackgroundLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.bgCancel = cancel
	s.bgDone = done
	go s.refreshLoop(ctx, done, s.refreshInterval)
}

// stopBackground cancels the refresh loop. wait blocks until it has exited and
// must be false on any path the loop itself can reach.
func (s *Service) stopBackground(wait bool) {
	s.mu.Lock()
	cancel, done := s.bgCancel, s.bgDone
	s.bgCancel, s.bgDone = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if wait {
		<-done
	}
}

func (s *Service) refreshLoop(ctx context.Context, done chan struct{}, interval time.Duration) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		_, err := s.deps.Refresher.Refresh(ctx)
		if err == nil {
			log.Debug().Msg("background token refresh succeeded")
			continue
		}
		if ctx.Err() != nil {
			// the session ended while the refresh was in flight
			return
		}

		log.Err(err).Msg("background token refresh failed")
		s.terminateFromLoop(err)
		return
	}
}

// terminateFromLoop is TerminateSession without waiting on the loop
func (s *Service) terminateFromLoop(reason error) {
	log.Warn().Err(reason).Msg("session terminated by background refresh")
	s.end(context.Background(), apperrors.UserMessage(apperrors.ErrSessionExpired), false)
}
