package surface

import (
	"context"
	"sync"
	"time"

	"github.com/danmuck/midikiti/internal/device"
	"github.com/danmuck/midikiti/internal/protocol"
	"github.com/danmuck/midikiti/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session is one live device connection: a link, the layout discovered on
// it and the read loop feeding that layout.
type Session struct {
	id      string
	port    string
	started time.Time
	link    *transport.Link
	layout  *device.Layout

	discoveryErr error

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func newSession(port string, link *transport.Link, layout *device.Layout, discoveryErr error) *Session {
	return &Session{
		id:           uuid.NewString(),
		port:         port,
		started:      time.Now(),
		link:         link,
		layout:       layout,
		discoveryErr: discoveryErr,
		done:         make(chan struct{}),
	}
}

func (s *Session) ID() string             { return s.id }
func (s *Session) Port() string           { return s.port }
func (s *Session) Started() time.Time     { return s.started }
func (s *Session) Layout() *device.Layout { return s.layout }
func (s *Session) Done() <-chan struct{}  { return s.done }
func (s *Session) DiscoveryErr() error    { return s.discoveryErr }

// Err returns the transport error that ended the read loop, or nil while
// running and after a clean close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Submit(id protocol.CommandID, payload []byte) error {
	return s.link.Submit(id, payload)
}

// start runs the read loop. onExit runs once the loop has ended and the
// port is closed.
func (s *Session) start(router *device.Router, idle time.Duration, onExit func(*Session)) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	frames, errc := s.link.Listen(ctx, idle)
	go func() {
		router.Run(ctx, frames)
		err := <-errc
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("session", s.id).Str("port", s.port).Msg("surface.Session read loop ended")
		}
		_ = s.link.Close()
		close(s.done)
		if onExit != nil {
			onExit(s)
		}
	}()
}

// Close stops the read loop and closes the port. It blocks until the loop
// has exited.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		return nil
	}
	return s.link.Close()
}
