package rapor

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for the caller-visible failure kinds. Test with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
)

// Kind classifies an error returned by the Engine.
type Kind int

const (
	// KindEngine covers store, connection and transaction failures.
	KindEngine Kind = iota
	KindInvalidInput
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Error is a classified failure carrying a message meant for the caller.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds translated validation messages keyed by JSON field name.
	Fields map[string]string
}

func (e *Error) Error() string { return e.Message }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

func invalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies err. Anything not raised as a client, conflict or
// not-found error is an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return KindEngine
}
