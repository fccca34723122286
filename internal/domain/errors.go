package domain

import (
	"errors"
	"fmt"
	"time"
)

// Registry and log errors
var (
	ErrInvalidDescriptor = errors.New("invalid server descriptor")
	ErrDuplicatePort     = errors.New("port already in use by another server")
	ErrBindFailed        = errors.New("failed to bind port")
	ErrNotFound          = errors.New("server not found")
	ErrLogNotFound       = errors.New("no logs to export")
	ErrPathNotAllowed    = errors.New("path is outside the log transfer directory")
	ErrStopTimeout       = errors.New("server did not stop within grace period")
)

// BindError reports a listener that could not bind its port
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// StopTimeoutError reports a listener whose graceful shutdown exceeded its grace period.
// The listener has been force-closed when this is returned.
type StopTimeoutError struct {
	Port        int
	GracePeriod time.Duration
	Err         error
}

func (e *StopTimeoutError) Error() string {
	return fmt.Sprintf("stop port %d: not stopped within %s: %v", e.Port, e.GracePeriod, e.Err)
}

func (e *StopTimeoutError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStopTimeout) match
func (e *StopTimeoutError) Is(target error) bool { return target == ErrStopTimeout }
