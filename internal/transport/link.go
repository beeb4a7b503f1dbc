package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/midikiti/internal/observability"
	"github.com/danmuck/midikiti/internal/protocol"
	"github.com/danmuck/midikiti/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

const readChunk = 256

// Link serializes every access to one Port. Outbound requests and the
// inbound read loop contend for the same lock, so a write never
// interleaves with a read or with another write.
type Link struct {
	mu     sync.Mutex
	port   Port
	closed bool
	buf    []byte
}

func NewLink(port Port) *Link {
	return &Link{
		port: port,
		buf:  make([]byte, readChunk),
	}
}

// Submit frames payload under id and writes it to the port in one call.
// Failures are returned to the caller and never retried.
func (l *Link) Submit(id protocol.CommandID, payload []byte) error {
	if len(payload) > protocol.MaxPayload {
		observability.RecordRequest(id.String(), false)
		return fmt.Errorf("%w: id=%s len=%d", protocol.ErrPayloadTooLarge, id, len(payload))
	}
	f := frame.Frame{ID: id, Payload: payload}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		observability.RecordRequest(id.String(), false)
		return &Error{Op: "write", Err: ErrClosed}
	}
	if err := frame.WriteFrame(l.port, f); err != nil {
		observability.RecordRequest(id.String(), false)
		log.Warn().Err(err).Str("command", id.String()).Msg("transport.Link.Submit write failed")
		return &Error{Op: "write", Err: err}
	}
	observability.RecordRequest(id.String(), true)
	log.Debug().
		Str("command", id.String()).
		Int("size", len(payload)).
		Msg("transport.Link.Submit sent")
	return nil
}

// ReadAvailable performs one bounded read under the lock and returns a
// copy of whatever arrived, possibly nothing.
func (l *Link) ReadAvailable() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, &Error{Op: "read", Err: ErrClosed}
	}
	n, err := l.port.Read(l.buf)
	if err != nil {
		return nil, &Error{Op: "read", Err: err}
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, l.buf[:n])
	return out, nil
}

// Exclusive runs fn with the port while holding the link lock.
// Used for exchanges that must read a response synchronously.
func (l *Link) Exclusive(fn func(Port) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return &Error{Op: "exclusive", Err: ErrClosed}
	}
	return fn(l.port)
}

// Flush discards any input already buffered on the port.
func (l *Link) Flush() error {
	return l.Exclusive(func(p Port) error {
		if err := p.ResetInputBuffer(); err != nil {
			return &Error{Op: "flush", Err: err}
		}
		return nil
	})
}

// Close closes the port. Later calls are no-ops.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.port.Close(); err != nil {
		return &Error{Op: "close", Err: err}
	}
	return nil
}

// Listen runs the steady-state read loop until ctx is cancelled or the
// port fails. Decoded frames are delivered in arrival order on the first
// channel, which is closed when the loop ends. The second channel carries
// the terminating transport error, or nil on cancellation.
func (l *Link) Listen(ctx context.Context, idle time.Duration) (<-chan frame.Frame, <-chan error) {
	frames := make(chan frame.Frame, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer close(frames)
		errc <- l.readLoop(ctx, idle, frame.NewDecoder(), frames)
	}()
	return frames, errc
}

func (l *Link) readLoop(ctx context.Context, idle time.Duration, dec *frame.Decoder, out chan<- frame.Frame) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if ctx.Err() != nil {
			log.Debug().Str("state", dec.State().String()).Msg("transport.Link.readLoop cancelled")
			return nil
		}
		data, err := l.ReadAvailable()
		if err != nil {
			log.Error().Err(err).Msg("transport.Link.readLoop stopped")
			return err
		}
		if len(data) == 0 {
			timer.Reset(idle)
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}
			continue
		}

		skipped := dec.Skipped()
		frames := dec.Feed(data)
		observability.RecordRead(len(data), dec.Skipped()-skipped)
		for _, f := range frames {
			observability.RecordFrame(f.ID.String())
			select {
			case out <- f:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
