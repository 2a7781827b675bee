package client

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrTxClosed       = errors.New("transaction already committed or discarded")
)

// SerializationError is returned when an argument marked for JSON encoding
// cannot be encoded. It is raised before any I/O.
type SerializationError struct {
	Command  string
	Position int
	Err      error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s: cannot encode argument %d: %v", e.Command, e.Position, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// TransportError wraps a failed round trip, or a commit that failed before
// producing per-operation replies. Err is the go-redis error as received.
type TransportError struct {
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// OperationError is a single queued operation rejected by the server inside
// an otherwise applied transaction. It is reported in a Report, never
// returned.
type OperationError struct {
	Index   int
	Command string
	Err     error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %d (%s): %v", e.Index, e.Command, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// DecodeError is returned by CallInto when a JSON reply does not fit the
// destination.
type DecodeError struct {
	Command string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: cannot decode reply: %v", e.Command, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
