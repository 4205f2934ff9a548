package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking.
var (
	ErrExecutionTimeout     = errors.New("execution exceeded wall-clock timeout")
	ErrExecutionStuck       = errors.New("execution produced no output within stuck window")
	ErrContainerUnavailable = errors.New("sandbox container unavailable")
	ErrUnknownContainer     = errors.New("unknown sandbox container")
)

// PoolError wraps errors with sandbox container context.
type PoolError struct {
	Container string
	Op        string // The operation that failed
	Err       error
}

func (e *PoolError) Error() string {
	if e.Container != "" {
		return fmt.Sprintf("sandbox %s: %s: %s", e.Container, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

// IsContainerUnavailable returns true if the error means no running container
// could be produced for a build-tool kind.
func IsContainerUnavailable(err error) bool {
	return errors.Is(err, ErrContainerUnavailable)
}
