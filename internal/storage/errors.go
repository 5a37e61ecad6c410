package storage

import (
	"errors"
	"fmt"
)

// Storage errors shared across implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an insert collides with an existing
	// key in a store that does not upsert.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// InfrastructureError wraps a driver-level failure (timeout, connection
// loss, protocol error). It is always surfaced to the caller and never
// retried by this layer.
type InfrastructureError struct {
	Op  string // the failing operation, e.g. "query", "exec", "begin"
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("storage infrastructure failure during %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// WrapInfra wraps err in an InfrastructureError unless it already is one.
func WrapInfra(op string, err error) error {
	var infra *InfrastructureError
	if errors.As(err, &infra) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}
