package fetchopts

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidOption is wrapped by every validation failure.
	ErrInvalidOption = errors.New("invalid fetch option")

	// ErrBodyEncoding is returned when a structured body cannot be encoded.
	ErrBodyEncoding = errors.New("encode request body")
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []string
	Reason  string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %q", e.Field, e.Value)
	if e.Reason != "" {
		b.WriteString(" ")
		b.WriteString(e.Reason)
	}
	if len(e.Allowed) > 0 {
		fmt.Fprintf(&b, " (allowed: %s)", strings.Join(e.Allowed, ", "))
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return ErrInvalidOption }

func invalid(field, value string, allowed []string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Allowed: allowed, Reason: "is not allowed"}
}
