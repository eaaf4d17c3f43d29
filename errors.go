package causelog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ValidationError reports a value or dictionary that failed a schema check.
type ValidationError struct {
	// Value is the rejected field value or dictionary.
	Value any

	// Message is a human-readable description.
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(value any, format string, args ...any) *ValidationError {
	return &ValidationError{Value: value, Message: fmt.Sprintf(format, args...)}
}

// SchemaError reports a malformed schema detected while building a
// MessageSerializer, MessageType or ActionType. These are programmer errors.
type SchemaError struct {
	// Keys lists the schema's field names in declaration order.
	Keys []string

	// Field names the offending field, if one can be singled out.
	Field string

	// Message is a human-readable description.
	Message string
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid schema %v: %s (field %q)", e.Keys, e.Message, e.Field)
	}
	return fmt.Sprintf("invalid schema %v: %s", e.Keys, e.Message)
}

// PanicError wraps a value recovered from a panicking destination or wrapped
// function.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// DestinationError is the failure of a single destination during Send.
type DestinationError struct {
	ID  DestinationID
	Err error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("destination %d: %v", e.ID, e.Err)
}

func (e *DestinationError) Unwrap() error {
	return e.Err
}

// SendError aggregates every destination failure from one Send call.
type SendError struct {
	Errors []*DestinationError
}

func (e *SendError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, de := range e.Errors {
		parts[i] = de.Error()
	}
	return fmt.Sprintf("%d destination(s) failed: %s", len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes the individual destination errors to errors.Is and errors.As.
func (e *SendError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, de := range e.Errors {
		out[i] = de
	}
	return out
}

// ErrorKind returns the name recorded in the exception field for err.
func ErrorKind(err error) string {
	if err == nil {
		return "<nil>"
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		if inner, ok := pe.Value.(error); ok {
			return fmt.Sprintf("%T", inner)
		}
	}
	return fmt.Sprintf("%T", err)
}

type errorExtractor func(err error) (Fields, bool)

var (
	extractorsMu sync.RWMutex
	extractors   []errorExtractor
)

// RegisterErrorExtractor registers a function contributing extra fields to
// failure and traceback messages for errors that match E anywhere in their
// chain. Fields an extractor returns never override identification fields.
func RegisterErrorExtractor[E error](extract func(E) Fields) {
	extractorsMu.Lock()
	defer extractorsMu.Unlock()
	extractors = append(extractors, func(err error) (Fields, bool) {
		var target E
		if !errors.As(err, &target) {
			return nil, false
		}
		return extract(target), true
	})
}

// fieldsForError runs every registered extractor against err. A panicking
// extractor contributes nothing.
func fieldsForError(err error) Fields {
	extractorsMu.RLock()
	list := slices.Clone(extractors)
	extractorsMu.RUnlock()

	out := Fields{}
	for _, extract := range list {
		fields, ok := safeExtract(extract, err)
		if !ok {
			continue
		}
		for k, v := range fields {
			out[k] = v
		}
	}
	return out
}

func safeExtract(extract errorExtractor, err error) (fields Fields, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			fields, ok = nil, false
		}
	}()
	return extract(err)
}
