package nodeapi

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch is matched by errors raised when a Config or a stored
	// frame belongs to a different variant, or the Config is malformed.
	ErrTypeMismatch = errors.New("nodeapi: type mismatch")
	// ErrDecode is matched by errors raised for truncated or malformed input.
	ErrDecode = errors.New("nodeapi: decode failed")
	// ErrIO is matched by errors raised by the underlying stream.
	ErrIO = errors.New("nodeapi: stream failure")
	// ErrUnknownType is returned when no Type is registered for an impl.
	ErrUnknownType = errors.New("nodeapi: unknown node type")
)

// TypeMismatchError reports a Config that cannot be used by a Type. The zero
// value reports a nil Config where no variant was requested yet.
type TypeMismatchError struct {
	Want ImplType
	Got  ImplType
	Err  error // validation failure, nil for a plain variant mismatch
}

func (e *TypeMismatchError) Error() string {
	switch {
	case e.Want == 0 && e.Got == 0 && e.Err == nil:
		return "config is nil"
	case e.Err != nil:
		return fmt.Sprintf("%s config rejected: %v", e.Want, e.Err)
	case e.Got == 0:
		return fmt.Sprintf("expected %s config, got nil", e.Want)
	default:
		return fmt.Sprintf("expected %s config, got %s", e.Want, e.Got)
	}
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

func (e *TypeMismatchError) Unwrap() error { return e.Err }

// CheckConfig validates cfg against the variant want and returns a
// *TypeMismatchError when it cannot be used.
func CheckConfig(want ImplType, cfg Config) error {
	if cfg == nil {
		return &TypeMismatchError{Want: want}
	}
	if cfg.Impl() != want {
		return &TypeMismatchError{Want: want, Got: cfg.Impl()}
	}
	if err := cfg.Validate(); err != nil {
		return &TypeMismatchError{Want: want, Got: cfg.Impl(), Err: err}
	}
	return nil
}

// DecodeError reports a frame that could not be decoded.
type DecodeError struct {
	Impl ImplType
	Key  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("decode %s: %v", e.Impl, e.Err)
	}
	return fmt.Sprintf("decode %s %s: %v", e.Impl, e.Key, e.Err)
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func (e *DecodeError) Unwrap() error { return e.Err }

// IOError reports a failure of the underlying stream.
type IOError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *IOError) Is(target error) bool { return target == ErrIO }

func (e *IOError) Unwrap() error { return e.Err }
