package executor

import (
	"errors"
	"fmt"
	"time"
)

// Policy violations, detected before a process is ever spawned.
var (
	ErrCommandNotAllowed = errors.New("command not in allowlist")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrPathNotAllowed    = errors.New("path outside job root")
)

// ErrSpawn indicates the process could not be started at all.
var ErrSpawn = errors.New("spawn failed")

// TimeoutError reports a process that was forcibly killed after exceeding its
// timeout. The slot is released before this error is returned.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("process %q killed after timeout of %s", e.Command, e.Timeout)
}

// ExitError reports a process that ran to completion with a non-zero exit code.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process %q exited with code %d", e.Command, e.ExitCode)
}

// IsToolFailure reports whether err is a failure of the tool itself (timeout or
// non-zero exit), as opposed to a policy violation. Tool failures trigger the
// fallback strategy at the call site; policy violations never do.
func IsToolFailure(err error) bool {
	var te *TimeoutError
	var ee *ExitError
	return errors.As(err, &te) || errors.As(err, &ee) || errors.Is(err, ErrSpawn)
}
