package monitor

import "errors"

var (
	errNotStarted    = errors.New("monitor is not started")
	errUnknownAction = errors.New("unknown inject action")
)
