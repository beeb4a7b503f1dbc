package protocol

import "fmt"

// CommandID tags a frame with its message type.
type CommandID uint8

// StartFlag opens every frame and is the decoder resync anchor.
const StartFlag byte = 0xFF

const (
	GetLayout      CommandID = 0x01
	GetPreferences CommandID = 0x02
	SetPreferences CommandID = 0x03
	Message        CommandID = 0x04
)

// MaxPayload is the largest payload a one-byte size field can describe.
const MaxPayload = 255

func (c CommandID) String() string {
	switch c {
	case GetLayout:
		return "get_layout"
	case GetPreferences:
		return "get_preferences"
	case SetPreferences:
		return "set_preferences"
	case Message:
		return "message"
	default:
		return fmt.Sprintf("0x%02X", uint8(c))
	}
}
