package reconcile

import "errors"

var (
	ErrNilModel = errors.New("equipment model is nil")
)
