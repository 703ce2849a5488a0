package engine

import (
	"errors"
	"fmt"
)

// ErrSkipped marks a patient that produced no work: opted out, nothing
// eligible, or everything already cached. It is never fatal.
var ErrSkipped = errors.New("patient skipped")

// ConnectError wraps a failure to obtain a browser session. Fatal to the run.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("connect: %v", e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

// LoginError wraps a failed or timed-out portal login. Fatal to the run.
type LoginError struct {
	Err error
}

func (e *LoginError) Error() string { return fmt.Sprintf("login: %v", e.Err) }
func (e *LoginError) Unwrap() error { return e.Err }

// IsFatal reports whether err must end the whole run.
func IsFatal(err error) bool {
	var ce *ConnectError
	var le *LoginError
	return errors.As(err, &ce) || errors.As(err, &le)
}
