// Package snmp pkg/source/snmp/types.go

package snmp

// SNMPVersion represents supported SNMP versions.
type SNMPVersion string

const (
	Version1  SNMPVersion = "v1"
	Version2c SNMPVersion = "v2c"
	Version3  SNMPVersion = "v3"
)
