package ovt

import (
	"errors"
	"fmt"
)

// Error kinds, as enumerated in spec §7. Each is a distinct value (or type)
// usable with errors.Is/errors.As.
var (
	ErrInvalidUrl       = errors.New("ovt: invalid origin url")
	ErrConnectFailed    = errors.New("ovt: connect to origin failed")
	ErrSendFailed       = errors.New("ovt: send to origin failed")
	ErrRecvFailed       = errors.New("ovt: receive from origin failed")
	ErrInvalidHeader    = errors.New("ovt: invalid packet header")
	ErrPayloadTooLarge  = errors.New("ovt: payload exceeds max packet size")
	ErrVersionMismatch  = errors.New("ovt: protocol version mismatch")
	ErrInvalidResponse  = errors.New("ovt: invalid control response")
	ErrInvalidDescribe  = errors.New("ovt: invalid describe payload")
	ErrProtocolError    = errors.New("ovt: unexpected packet during session")
	ErrInvalidState     = errors.New("ovt: operation invalid in current state")
	ErrConnectionLost   = errors.New("ovt: connection lost")
	ErrReassemblyOverflow = errors.New("ovt: too many in-flight frames")
)

// ServerFailureError reports a control response whose code was not 200.
type ServerFailureError struct {
	Code    uint32
	Message string
}

func (e *ServerFailureError) Error() string {
	return fmt.Sprintf("ovt: server failure: code=%d message=%q", e.Code, e.Message)
}

// newServerFailure builds a ServerFailureError. It wraps no sentinel;
// callers recognize it with errors.As.
func newServerFailure(code uint32, message string) error {
	return &ServerFailureError{Code: code, Message: message}
}
