package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies migration failures.
type ErrorKind string

const (
	KindConnectionError    ErrorKind = "connection"
	KindQueryError         ErrorKind = "query"
	KindSchemaError        ErrorKind = "schema"
	KindSerializationError ErrorKind = "serialization"
	KindWriteError         ErrorKind = "write"
)

// Error is a classified failure with the entity and direction it happened on.
type Error struct {
	Kind      ErrorKind
	Entity    string
	Direction Direction
	Err       error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrConnection    = &Error{Kind: KindConnectionError}
	ErrQuery         = &Error{Kind: KindQueryError}
	ErrSchema        = &Error{Kind: KindSchemaError}
	ErrSerialization = &Error{Kind: KindSerializationError}
	ErrWrite         = &Error{Kind: KindWriteError}
)

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.Entity != "" {
		msg += fmt.Sprintf(" on %q", e.Entity)
	}
	if e.Direction != "" {
		msg += fmt.Sprintf(" (%s)", e.Direction)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when target is a bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Err != nil || t.Entity != "" {
		return e == t
	}
	return e.Kind == t.Kind
}

func newError(kind ErrorKind, entity string, err error) *Error {
	return &Error{Kind: kind, Entity: entity, Err: err}
}

func ConnectionError(entity string, err error) *Error {
	return newError(KindConnectionError, entity, err)
}

func QueryError(entity string, err error) *Error {
	return newError(KindQueryError, entity, err)
}

func SchemaError(entity string, err error) *Error {
	return newError(KindSchemaError, entity, err)
}

func WriteError(entity string, err error) *Error {
	return newError(KindWriteError, entity, err)
}

// SerializationError names the field and variant that the target cannot hold.
func SerializationError(entity, field string, kind Kind) *Error {
	return newError(KindSerializationError, entity,
		fmt.Errorf("field %q: %s value has no representation in target", field, kind))
}

// WithContext fills in entity and direction on a classified error that
// lacks them. Unclassified errors are returned unchanged.
func WithContext(err error, entity string, dir Direction) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	if e.Entity == "" {
		e.Entity = entity
	}
	if e.Direction == "" {
		e.Direction = dir
	}
	return err
}
