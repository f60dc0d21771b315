package publish

import "errors"

var (
	errDisabled       = errors.New("mqtt publisher is disabled")
	errBrokerRequired = errors.New("mqtt broker address is required")
)
