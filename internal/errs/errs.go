// Package errs defines the error taxonomy used to translate raw errors
// at component boundaries into the categories the Scheduler and callers
// reason about: transient, auth, parse, invalid config, fatal.
package errs

import "errors"

var (
	// ErrTransient marks a network/transport failure eligible for retry
	// or for skipping the affected resource this cycle.
	ErrTransient = errors.New("transient error")

	// ErrAuth marks a login/session failure.
	ErrAuth = errors.New("authentication error")

	// ErrParse marks HTML that could not be interpreted under either
	// known grid layout. Zero tee-times from a recognized layout is not
	// this category — that's a legitimate empty result.
	ErrParse = errors.New("parse error")

	// ErrInvalidConfig marks a rejected write (bad time window, unknown
	// course key, malformed preferences) that must never reach the
	// Scheduler.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrFatal marks conditions the process cannot recover from at
	// startup: unreachable store, missing required env vars.
	ErrFatal = errors.New("fatal error")
)

// Transient wraps err so errors.Is(result, ErrTransient) holds.
func Transient(err error) error { return wrap(ErrTransient, err) }

// Auth wraps err so errors.Is(result, ErrAuth) holds.
func Auth(err error) error { return wrap(ErrAuth, err) }

// Parse wraps err so errors.Is(result, ErrParse) holds.
func Parse(err error) error { return wrap(ErrParse, err) }

// InvalidConfig wraps err so errors.Is(result, ErrInvalidConfig) holds.
func InvalidConfig(err error) error { return wrap(ErrInvalidConfig, err) }

// Fatal wraps err so errors.Is(result, ErrFatal) holds.
func Fatal(err error) error { return wrap(ErrFatal, err) }

func wrap(category, err error) error {
	if err == nil {
		return category
	}
	return &categorized{category: category, cause: err}
}

type categorized struct {
	category error
	cause    error
}

func (c *categorized) Error() string {
	return c.category.Error() + ": " + c.cause.Error()
}

func (c *categorized) Unwrap() []error {
	return []error{c.category, c.cause}
}
