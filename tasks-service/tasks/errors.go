package tasks

import (
	"errors"
	"fmt"
)

// Every error returned by Service wraps exactly one of these.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("task not found")
	ErrStoreFailure    = errors.New("store failure")
)

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}
