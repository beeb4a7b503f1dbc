package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/midikiti/internal/protocol"
)

// HeaderLen is the start marker, id and size bytes preceding the payload.
const HeaderLen = 3

var ErrShortWrite = errors.New("frame: short write")

// Frame is one complete wire command.
type Frame struct {
	ID      protocol.CommandID
	Payload []byte
}

// Size is the payload length carried in the size byte.
func (f Frame) Size() uint8 {
	return uint8(len(f.Payload))
}

// Encode renders f as [start][id][size][payload...].
func Encode(f Frame) ([]byte, error) {
	if len(f.Payload) > protocol.MaxPayload {
		return nil, fmt.Errorf("%w: id=%s len=%d", protocol.ErrPayloadTooLarge, f.ID, len(f.Payload))
	}
	buf := make([]byte, HeaderLen+len(f.Payload))
	buf[0] = protocol.StartFlag
	buf[1] = byte(f.ID)
	buf[2] = byte(len(f.Payload))
	copy(buf[HeaderLen:], f.Payload)
	return buf, nil
}

// WriteFrame encodes f and hands it to w in a single Write call.
func WriteFrame(w io.Writer, f Frame) error {
	buf, err := Encode(f)
	if err != nil {
		return err
	}
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("%w: wrote %d of %d", ErrShortWrite, n, len(buf))
	}
	return nil
}
