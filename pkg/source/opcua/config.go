// Package opcua pkg/source/opcua/config.go

package opcua

import (
	"fmt"
	"strings"

	"github.com/carverauto/faultradar/pkg/models"
)

const (
	kindFault = "fault"
	kindAlarm = "alarm"

	defaultApplicationName = "FaultRadar Monitor"
)

// NodeMapping binds one boolean tag on the server to a fault or alarm
// code. While the tag reads true the code is considered active.
type NodeMapping struct {
	NodeID      string `json:"node_id"`
	Code        string `json:"code"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	Component   string `json:"component,omitempty"`
}

// EventKind returns the raw event kind asserted while the tag is true.
func (n *NodeMapping) EventKind() models.EventKind {
	if n.Kind == kindAlarm {
		return models.KindAlarm
	}

	return models.KindFault
}

// Config defines the connection and the monitored tag set.
type Config struct {
	Endpoint        string        `json:"endpoint"`
	Username        string        `json:"username,omitempty"`
	Password        string        `json:"password,omitempty"`
	SecurityMode    string        `json:"security_mode,omitempty"`
	SecurityPolicy  string        `json:"security_policy,omitempty"`
	ApplicationName string        `json:"application_name,omitempty"`
	Nodes           []NodeMapping `json:"nodes"`
}

// Validate implements config.Validator. It normalizes node kinds and
// fills connection defaults.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errEndpointRequired
	}

	if len(c.Nodes) == 0 {
		return errNoNodes
	}

	for i := range c.Nodes {
		node := &c.Nodes[i]

		if node.Code == "" {
			return fmt.Errorf("%w: node %q", errNodeCode, node.NodeID)
		}

		node.Kind = strings.ToLower(node.Kind)
		if node.Kind == "" {
			node.Kind = kindFault
		}

		if node.Kind != kindFault && node.Kind != kindAlarm {
			return fmt.Errorf("%w: node %q has kind %q", errNodeKind, node.NodeID, node.Kind)
		}
	}

	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}

	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}

	if c.ApplicationName == "" {
		c.ApplicationName = defaultApplicationName
	}

	return nil
}
