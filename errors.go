package offheap

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds is returned when a row, column, coordinate or address
	// lies outside the structure.
	ErrOutOfBounds = errors.New("offheap: out of bounds")
	// ErrReleased is returned when a structure is used after Release.
	ErrReleased = errors.New("offheap: structure released")
	// ErrInvalidConfig is returned when a Config field is out of range.
	ErrInvalidConfig = errors.New("offheap: invalid config")
)

// ErrColumnMismatch indicates a row whose length differs from the configured
// column count. It matches ErrOutOfBounds via errors.Is.
type ErrColumnMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrColumnMismatch) Error() string {
	return fmt.Sprintf("column mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrColumnMismatch) Unwrap() error { return ErrOutOfBounds }
