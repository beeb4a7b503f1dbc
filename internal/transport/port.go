package transport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/danmuck/midikiti/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

var ErrClosed = errors.New("transport: closed")

// Port is the serial handle used by a Link. Read returns (0, nil) when
// the read timeout expires with no data.
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

// Error is a failure on the underlying serial connection.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// OpenSerial opens name as 8N1 at the configured baud with a bounded read timeout.
func OpenSerial(name string, cfg session.Config) (Port, error) {
	cfg = cfg.WithDefaults()
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, &Error{Op: "open " + name, Err: err}
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, &Error{Op: "set read timeout", Err: err}
	}
	log.Info().
		Str("port", name).
		Int("baud", cfg.BaudRate).
		Dur("read_timeout", cfg.ReadTimeout).
		Msg("transport.OpenSerial opened")
	return port, nil
}

// ListPorts returns the serial ports visible to the host, sorted by name.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, &Error{Op: "list ports", Err: err}
	}
	sort.Strings(ports)
	return ports, nil
}

// IsDisconnect reports whether err means the device is gone.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return true
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return disconnectCode(portErr.Code())
	}
	var portErrVal serial.PortError
	if errors.As(err, &portErrVal) {
		return disconnectCode(portErrVal.Code())
	}
	return false
}

func disconnectCode(code serial.PortErrorCode) bool {
	switch code {
	case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
		return true
	default:
		return false
	}
}
