// Package snmp pkg/source/snmp/config.go

package snmp

import (
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/faultradar/pkg/config"
	"github.com/carverauto/faultradar/pkg/models"
)

const (
	kindFault = "fault"
	kindAlarm = "alarm"

	defaultPort      = 161
	defaultCommunity = "public"
	defaultTimeout   = 2 * time.Second
	defaultRetries   = 1
)

// OIDMapping binds one integer OID to a fault or alarm code. The code
// is active while the OID reads 1, which covers both plain 0/1 flags
// and TruthValue (1 true, 2 false) objects.
type OIDMapping struct {
	OID         string `json:"oid"`
	Code        string `json:"code"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	Component   string `json:"component,omitempty"`
}

// EventKind returns the raw event kind asserted while the OID reads 1.
func (o *OIDMapping) EventKind() models.EventKind {
	if o.Kind == kindAlarm {
		return models.KindAlarm
	}

	return models.KindFault
}

// Config defines the SNMP target and the monitored OID set.
type Config struct {
	Host      string          `json:"host"`
	Port      uint16          `json:"port,omitempty"`
	Community string          `json:"community,omitempty"`
	Version   SNMPVersion     `json:"version,omitempty"`
	Timeout   config.Duration `json:"timeout,omitempty"`
	Retries   int             `json:"retries,omitempty"`
	OIDs      []OIDMapping    `json:"oids"`
}

// Validate implements config.Validator. It normalizes OID kinds and
// fills target defaults. The default request timeout stays well under
// the poll deadline so a slow agent degrades one cycle instead of
// stalling the scheduler.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errHostRequired
	}

	if len(c.OIDs) == 0 {
		return errNoOIDs
	}

	for i := range c.OIDs {
		oid := &c.OIDs[i]

		if oid.Code == "" {
			return fmt.Errorf("%w: oid %q", errOIDCode, oid.OID)
		}

		oid.OID = strings.TrimPrefix(oid.OID, ".")

		oid.Kind = strings.ToLower(oid.Kind)
		if oid.Kind == "" {
			oid.Kind = kindFault
		}

		if oid.Kind != kindFault && oid.Kind != kindAlarm {
			return fmt.Errorf("%w: oid %q has kind %q", errOIDKind, oid.OID, oid.Kind)
		}
	}

	if c.Port == 0 {
		c.Port = defaultPort
	}

	if c.Community == "" {
		c.Community = defaultCommunity
	}

	if c.Version == "" {
		c.Version = Version2c
	}

	if c.Version != Version1 && c.Version != Version2c {
		return fmt.Errorf("%w: %s", errUnsupportedVersion, c.Version)
	}

	if c.Timeout == 0 {
		c.Timeout = config.Duration(defaultTimeout)
	}

	if c.Retries == 0 {
		c.Retries = defaultRetries
	}

	return nil
}
