package remote

import (
	"errors"
	"fmt"
)

// Error is the single failure kind reported by the memory and completion
// backends. Network, authentication and quota failures are not distinguished.
type Error struct {
	Service string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err as a remote failure of service/op. A nil err stays nil and an
// error that is already remote is returned unchanged.
func Wrap(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Service: service, Op: op, Err: err}
}

// IsRemote reports whether err originated from a remote backend.
func IsRemote(err error) bool {
	var target *Error
	return errors.As(err, &target)
}
