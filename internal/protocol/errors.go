package protocol

import "errors"

var (
	ErrTruncatedPayload     = errors.New("protocol: truncated payload")
	ErrTrailingBytes        = errors.New("protocol: trailing payload bytes")
	ErrPayloadTooLarge      = errors.New("protocol: payload too large")
	ErrIndexOutOfRange      = errors.New("protocol: index out of range")
	ErrMalformedLayout      = errors.New("protocol: malformed layout response")
	ErrUnknownInterfaceType = errors.New("protocol: unknown interface type")
)
