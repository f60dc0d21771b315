package snmp

import "errors"

var (
	errHostRequired       = errors.New("host is required")
	errNoOIDs             = errors.New("at least one oid mapping is required")
	errOIDCode            = errors.New("oid mapping requires a code")
	errOIDKind            = errors.New("oid kind must be fault or alarm")
	errUnsupportedVersion = errors.New("unsupported SNMP version")
)
