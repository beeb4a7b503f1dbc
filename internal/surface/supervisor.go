package surface

import (
	"context"
	"math/rand"
	"time"

	"github.com/danmuck/midikiti/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Supervise keeps a session open on port until ctx is cancelled. When a
// connect fails or the read loop ends with a transport error, it waits
// out the configured backoff and reconnects. It returns nil on
// cancellation, or when the session is closed or replaced elsewhere.
func (s *Service) Supervise(ctx context.Context, port string) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	for {
		sess, err := s.connectOnce(ctx, port)
		if err == nil {
			attempt = 0
			select {
			case <-ctx.Done():
				return s.Disconnect()
			case <-sess.Done():
			}
			if err = sess.Err(); err == nil {
				log.Info().Str("session", sess.id).Msg("surface.Service.Supervise session closed")
				return nil
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		attempt++
		delay := session.NextBackoffDelay(s.cfg.Backoff, attempt, rng)
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("surface.Service.Supervise reconnecting")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Service) connectOnce(ctx context.Context, port string) (*Session, error) {
	name, err := s.ResolvePort(port)
	if err != nil {
		return nil, err
	}
	return s.Connect(ctx, name)
}

// release forgets sess if it is still the active session. Sessions call it
// when their read loop ends.
func (s *Service) release(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == sess {
		s.current = nil
	}
}
