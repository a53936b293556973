package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every rejected configuration value.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrBind is returned when the relay socket cannot be bound.
	ErrBind = errors.New("bind failed")

	// ErrNoClient means a server->client datagram arrived before any client was learned.
	ErrNoClient = errors.New("client address not learned yet")

	// ErrOverflow means the bounded scheduler had no free slot for a delayed send.
	ErrOverflow = errors.New("delayed send limit reached")
)

// ValidationError reports a single out-of-range configuration field.
type ValidationError struct {
	Field string
	Value int
	Min   int
	Max   int // negative means unbounded
}

func (e *ValidationError) Error() string {
	if e.Max < 0 {
		return fmt.Sprintf("%s must be >= %d, got %d", e.Field, e.Min, e.Value)
	}
	return fmt.Sprintf("%s must be between %d and %d, got %d", e.Field, e.Min, e.Max, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// checkRange returns a *ValidationError if v falls outside [min, max].
func checkRange(field string, v, min, max int) error {
	if v < min || (max >= 0 && v > max) {
		return &ValidationError{Field: field, Value: v, Min: min, Max: max}
	}
	return nil
}
