package fakeport

import (
	"github.com/danmuck/midikiti/internal/protocol"
	"github.com/danmuck/midikiti/internal/protocol/frame"
)

// Address is a [commander, interface] pair.
type Address [2]byte

// NewDevice returns a port that answers like the firmware: a GetLayout
// request queues layout verbatim (nil means no answer) and a
// GetPreferences request for a known address queues a preference frame.
func NewDevice(layout []byte, prefs map[Address][]byte) *Port {
	port := New()
	port.OnWrite(func(p *Port, b []byte) {
		for _, f := range frame.NewDecoder().Feed(b) {
			switch f.ID {
			case protocol.GetLayout:
				if layout != nil {
					p.Queue(layout)
				}
			case protocol.GetPreferences:
				if len(f.Payload) < 2 {
					continue
				}
				param, ok := prefs[Address{f.Payload[0], f.Payload[1]}]
				if !ok {
					continue
				}
				out, err := frame.Encode(frame.Frame{
					ID:      protocol.GetPreferences,
					Payload: append([]byte{f.Payload[0], f.Payload[1]}, param...),
				})
				if err == nil {
					p.Queue(out)
				}
			}
		}
	})
	return port
}
