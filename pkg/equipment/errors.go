package equipment

import "errors"

var (
	ErrModelLoad            = errors.New("failed to load equipment model")
	ErrNoComponents         = errors.New("model defines no components")
	ErrEmptyComponentID     = errors.New("component id is empty")
	ErrDuplicateComponentID = errors.New("duplicate component id")
	ErrUnknownConnectionEnd = errors.New("connection references unknown component")
	ErrUnknownFaultTarget   = errors.New("fault_map references unknown component")
	ErrUnknownAlarmTarget   = errors.New("alarm_map references unknown component")
)
