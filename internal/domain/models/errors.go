package models

import (
	"errors"
	"fmt"
)

var (
	ErrRiskBreached  = errors.New("risk limit breached")
	ErrInvalidStop   = errors.New("stop price not on loss side of entry")
	ErrMaxExposure   = errors.New("max exposure per instrument exceeded")
	ErrUnknownKind   = errors.New("unknown envelope kind")
	ErrAlreadyOpen   = errors.New("position already open")
	ErrMaxPositions  = errors.New("max concurrent positions reached")
	ErrCorrelatedCap = errors.New("correlated exposure cap reached")
)

// ValidationError describes a malformed inbound event. These are dropped and
// logged; they never reach the cache or the aggregator.
type ValidationError struct {
	Kind  string
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s event: field %s: %s", e.Kind, e.Field, e.Msg)
	}
	return fmt.Sprintf("invalid %s event: %s", e.Kind, e.Msg)
}

// NewValidationError builds a typed validation failure.
func NewValidationError(kind, field, msg string) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Msg: msg}
}
