package device

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/midikiti/internal/protocol"
	"github.com/danmuck/midikiti/internal/protocol/frame"
	"github.com/danmuck/midikiti/internal/transport"
	"github.com/rs/zerolog/log"
)

// maxScan bounds how many bytes discovery discards looking for a start marker.
const maxScan = 1024

// Discover runs the one-shot layout exchange while holding the link lock:
// send GetLayout, wait grace, scan to a start marker, check the id echo,
// then read the commander/interface tree byte by byte.
//
// A missing or mismatched response returns an empty layout together with
// protocol.ErrMalformedLayout. Transport failures return a nil layout.
func Discover(ctx context.Context, link *transport.Link, grace time.Duration) (*Layout, error) {
	var layout *Layout
	err := link.Exclusive(func(port transport.Port) error {
		if err := frame.WriteFrame(port, frame.Frame{ID: protocol.GetLayout, Payload: []byte{0x00}}); err != nil {
			return &transport.Error{Op: "write", Err: err}
		}
		if grace > 0 {
			timer := time.NewTimer(grace)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		l, err := readLayout(&byteReader{port: port})
		layout = l
		return err
	})
	if err != nil {
		if layout != nil {
			log.Warn().Err(err).Msg("device.Discover degraded to empty layout")
			return layout, err
		}
		return nil, err
	}
	log.Info().
		Int("commanders", len(layout.commanders)).
		Int("interfaces", len(layout.Interfaces())).
		Msg("device.Discover layout ready")
	return layout, nil
}

func readLayout(r *byteReader) (*Layout, error) {
	empty := NewLayout(nil)
	skipped := 0
	for {
		b, ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return empty, fmt.Errorf("%w: no start marker after %d bytes", protocol.ErrMalformedLayout, skipped)
		}
		if b == protocol.StartFlag {
			break
		}
		skipped++
		if skipped >= maxScan {
			return empty, fmt.Errorf("%w: no start marker in %d bytes", protocol.ErrMalformedLayout, skipped)
		}
	}

	id, err := r.must("id")
	if err != nil {
		return empty, err
	}
	if protocol.CommandID(id) != protocol.GetLayout {
		return empty, fmt.Errorf("%w: id=%s", protocol.ErrMalformedLayout, protocol.CommandID(id))
	}

	count, err := r.must("commander count")
	if err != nil {
		return empty, err
	}
	types := make([][]uint8, 0, count)
	for c := 0; c < int(count); c++ {
		n, err := r.must("interface count")
		if err != nil {
			return empty, err
		}
		ids := make([]uint8, 0, n)
		for i := 0; i < int(n); i++ {
			t, err := r.must("interface type")
			if err != nil {
				return empty, err
			}
			ids = append(ids, t)
		}
		types = append(types, ids)
	}
	return NewLayout(types), nil
}

// byteReader reads one byte per call so nothing past the layout body is
// consumed from the port.
type byteReader struct {
	port transport.Port
	buf  [1]byte
}

func (r *byteReader) next() (byte, bool, error) {
	n, err := r.port.Read(r.buf[:])
	if err != nil {
		return 0, false, &transport.Error{Op: "read", Err: err}
	}
	if n == 0 {
		return 0, false, nil
	}
	return r.buf[0], true, nil
}

func (r *byteReader) must(what string) (byte, error) {
	b, ok, err := r.next()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", protocol.ErrMalformedLayout, what)
	}
	return b, nil
}
