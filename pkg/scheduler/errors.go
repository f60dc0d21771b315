package scheduler

import "errors"

var (
	errAlreadyStarted = errors.New("scheduler already started")
	errNotStarted     = errors.New("scheduler not started")
)
