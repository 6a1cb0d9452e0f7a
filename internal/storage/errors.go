package storage

import "errors"

// ErrCasoNotFound is returned when an operation references an unknown caso.
var ErrCasoNotFound = errors.New("storage: caso not found")

// ErrPatternNotFound is returned when an operation references an unknown pattern.
var ErrPatternNotFound = errors.New("storage: pattern not found")

// ErrUnavailable tags transient substrate I/O failures. Callers may retry
// with backoff; errors.Is(err, ErrUnavailable) distinguishes these from
// programming errors like ErrCasoNotFound.
var ErrUnavailable = errors.New("storage: unavailable")
