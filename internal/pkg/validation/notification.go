// Package validation implements an error-accumulating notification used by
// entities and commands to report every violated rule at once instead of
// stopping at the first one.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is matched by every *Failure.
var ErrValidation = errors.New("validation failed")

// Error is a single violated rule.
type Error struct {
	Message string `json:"message"`
}

// Notification collects violations in the order they were found.
// The zero value is ready to use.
type Notification struct {
	errs []Error
}

func (n *Notification) Append(message string) {
	n.errs = append(n.errs, Error{Message: message})
}

func (n *Notification) Appendf(format string, args ...any) {
	n.Append(fmt.Sprintf(format, args...))
}

// Merge folds err into the notification. A *Failure contributes its whole
// violation list; any other error contributes its text.
func (n *Notification) Merge(err error) {
	if err == nil {
		return
	}
	var f *Failure
	if errors.As(err, &f) {
		n.errs = append(n.errs, f.Errors...)
		return
	}
	n.Append(err.Error())
}

func (n *Notification) HasErrors() bool {
	return len(n.errs) > 0
}

// Errors returns a copy of the collected violations.
func (n *Notification) Errors() []Error {
	out := make([]Error, len(n.errs))
	copy(out, n.errs)
	return out
}

// Err returns nil when nothing was collected, otherwise a *Failure carrying
// message and the full ordered list of violations.
func (n *Notification) Err(message string) error {
	if !n.HasErrors() {
		return nil
	}
	return &Failure{Message: message, Errors: n.Errors()}
}

// Failure is raised once all rules of an entity have been checked.
type Failure struct {
	Message string
	Errors  []Error
}

func (f *Failure) Error() string {
	if len(f.Errors) == 0 {
		return f.Message
	}
	msgs := make([]string, len(f.Errors))
	for i, e := range f.Errors {
		msgs[i] = e.Message
	}
	return f.Message + ": " + strings.Join(msgs, "; ")
}

func (f *Failure) Is(target error) bool {
	return target == ErrValidation
}

// Messages returns the violation texts in order.
func (f *Failure) Messages() []string {
	msgs := make([]string, len(f.Errors))
	for i, e := range f.Errors {
		msgs[i] = e.Message
	}
	return msgs
}

// New builds a failure with a single violation.
func New(message, violation string) error {
	var n Notification
	n.Append(violation)
	return n.Err(message)
}

// IsBlank reports whether s is empty after trimming whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
