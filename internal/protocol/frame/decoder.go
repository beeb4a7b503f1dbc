package frame

import "github.com/danmuck/midikiti/internal/protocol"

// State is the decoder position within a frame.
type State uint8

const (
	StateIdle State = iota
	StateHaveID
	StateHaveSize
	StateAccumulating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHaveID:
		return "have_id"
	case StateHaveSize:
		return "have_size"
	case StateAccumulating:
		return "accumulating"
	default:
		return "unknown"
	}
}

// Decoder turns an arbitrarily chunked byte stream into complete frames.
// Bytes outside a frame are dropped until the next start marker.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	state   State
	id      protocol.CommandID
	size    int
	payload []byte

	skipped uint64
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// State reports where the decoder sits in the current frame.
func (d *Decoder) State() State {
	return d.state
}

// Skipped counts bytes discarded while scanning for a start marker.
func (d *Decoder) Skipped() uint64 {
	return d.skipped
}

// Feed consumes b and returns every frame completed by it, in order.
func (d *Decoder) Feed(b []byte) []Frame {
	var out []Frame
	for _, c := range b {
		if f, ok := d.step(c); ok {
			out = append(out, f)
		}
	}
	return out
}

// Reset drops any partially decoded frame.
func (d *Decoder) Reset() {
	d.state = StateIdle
	d.id = 0
	d.size = 0
	d.payload = nil
}

func (d *Decoder) step(c byte) (Frame, bool) {
	switch d.state {
	case StateIdle:
		if c == protocol.StartFlag {
			d.state = StateHaveID
		} else {
			d.skipped++
		}
	case StateHaveID:
		// Taken verbatim, even when it equals the start marker.
		d.id = protocol.CommandID(c)
		d.state = StateHaveSize
	case StateHaveSize:
		d.size = int(c)
		if d.size == 0 {
			return d.complete(), true
		}
		d.payload = make([]byte, 0, d.size)
		d.state = StateAccumulating
	case StateAccumulating:
		d.payload = append(d.payload, c)
		if len(d.payload) >= d.size {
			return d.complete(), true
		}
	}
	return Frame{}, false
}

func (d *Decoder) complete() Frame {
	f := Frame{ID: d.id, Payload: d.payload}
	if f.Payload == nil {
		f.Payload = []byte{}
	}
	d.Reset()
	return f
}
