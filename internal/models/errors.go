package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("payment not found")
	ErrInvalidState = errors.New("payment already finalized")
	ErrNetwork      = errors.New("gateway unavailable")
)

// GatewayError is returned by the payment gateway client. Kind is one of the
// sentinel errors above.
type GatewayError struct {
	Op         string
	StatusCode int
	Message    string
	Kind       error
	Err        error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (http %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GatewayError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

type ValidationError struct {
	Violations map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for f, v := range e.Violations {
		fields = append(fields, f+": "+v)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
