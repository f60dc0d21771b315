package source

import "errors"

var (
	// ErrNotConnected is returned by Poll when Connect has not succeeded.
	ErrNotConnected = errors.New("source is not connected")

	// ErrTimeout is returned when a poll misses its deadline.
	ErrTimeout = errors.New("poll deadline exceeded")

	// ErrMalformed is returned when the transport worked but the payload
	// could not be decoded.
	ErrMalformed = errors.New("malformed source payload")

	// ErrAdapterFailed is returned when an adapter subprocess ran but
	// reported failure.
	ErrAdapterFailed = errors.New("adapter command failed")

	// ErrInjectUnsupported is returned when an injection is requested
	// against a source that does not implement Injector.
	ErrInjectUnsupported = errors.New("source does not support injection")

	errNoSource     = errors.New("no source factory registered for type")
	errEmptyCommand = errors.New("command must not be empty")
)

// IsDataError reports whether err is a payload problem on an otherwise
// healthy transport. Data errors leave the connection up; everything
// else makes the scheduler disconnect and back off.
func IsDataError(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrAdapterFailed)
}
