// Package errors holds sentinel errors shared by command parsing.
package errors

import (
	"errors"
)

// ErrInvalidInput marks arguments that could not be parsed; callers wrap it
// with the offending value.
var ErrInvalidInput = errors.New("invalid input")
