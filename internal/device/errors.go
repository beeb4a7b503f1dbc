package device

import (
	"errors"
	"fmt"

	"github.com/danmuck/midikiti/internal/protocol"
)

var (
	ErrNoValues  = errors.New("device: no parameter values loaded")
	ErrNoSchema  = errors.New("device: interface has no parameter schema")
	ErrNilLayout = errors.New("device: nil layout")
)

// RouteError reports an inbound frame that could not be applied to the layout.
// The frame is dropped; decoder state is unaffected.
type RouteError struct {
	CommandID protocol.CommandID
	Commander int
	Interface int
	Err       error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("device: route %s commander=%d interface=%d: %v",
		e.CommandID, e.Commander, e.Interface, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}
