// Package errs provides the annotated-error-value convention this module
// uses in place of the teacher's own btcutil/er package, whose source was
// not available to port.
package errs

import "github.com/pkg/errors"

// New creates a new error carrying a stack trace.
func New(msg string) error {
	return errors.New(msg)
}

// Wrap annotates err with msg and a stack trace, or returns nil if err is
// nil.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf annotates err with a formatted message and a stack trace, or
// returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Errorf creates a new formatted error carrying a stack trace.
func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}
