package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrUnknownEventKind marks a stored or received event the order cannot
	// fold. It is never retried: it points at a decoding or versioning bug.
	ErrUnknownEventKind = errors.New("unknown event kind received")
)

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %s was not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type UnknownEventKindError struct {
	Kind string
}

func (e *UnknownEventKindError) Error() string {
	return fmt.Sprintf("unknown event kind received: %q", e.Kind)
}

func (e *UnknownEventKindError) Is(target error) bool {
	return target == ErrUnknownEventKind
}
