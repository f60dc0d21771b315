package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/carverauto/faultradar/pkg/models"
)

var (
	errInvalidDuration   = fmt.Errorf("invalid duration")
	errModelFileRequired = fmt.Errorf("model_file is required")
	errSourceRequired    = fmt.Errorf("source type is required")
)

type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// parse numeric as nanoseconds
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

// SourceSpec selects a telemetry source implementation.
type SourceSpec struct {
	Type   string          `json:"type"`             // e.g. "simulator", "command", "opcua", "snmp"
	Name   string          `json:"name,omitempty"`   // Display name; defaults to Type
	Config json.RawMessage `json:"config,omitempty"` // Source-specific configuration
}

// WebhookConfig represents a webhook notification target.
type WebhookConfig struct {
	Enabled  bool     `json:"enabled"`
	URL      string   `json:"url"`
	Cooldown Duration `json:"cooldown"`
	Template string   `json:"template,omitempty"`
	Headers  []Header `json:"headers,omitempty"` // Optional custom headers
}

// Header represents a custom HTTP header.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MQTTConfig configures the optional snapshot publisher.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"` // e.g. tcp://localhost:1883
	ClientID    string `json:"client_id,omitempty"`
	TopicPrefix string `json:"topic_prefix,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	QoS         byte   `json:"qos,omitempty"`
}

// MonitorConfig represents the configuration for the monitor service.
type MonitorConfig struct {
	ListenAddr   string                 `json:"listen_addr"`             // HTTP API address
	GRPCAddr     string                 `json:"grpc_addr,omitempty"`     // gRPC health endpoint
	DBPath       string                 `json:"db_path,omitempty"`       // Journal database; empty disables persistence
	ModelFile    string                 `json:"model_file"`              // Equipment model document
	Source       SourceSpec             `json:"source"`                  // Active telemetry source
	PollInterval Duration               `json:"poll_interval,omitempty"` // Cadence between poll cycles
	PollTimeout  Duration               `json:"poll_timeout,omitempty"`  // Hard per-poll deadline
	HistorySize  int                    `json:"history_size,omitempty"`  // Snapshot ring size
	Retention    Duration               `json:"retention,omitempty"`     // Journal retention window
	Webhooks     []WebhookConfig        `json:"webhooks,omitempty"`
	MQTT         *MQTTConfig            `json:"mqtt,omitempty"`
	Security     *models.SecurityConfig `json:"security,omitempty"`
}

const (
	defaultListenAddr   = ":8090"
	defaultGRPCAddr     = ":50052"
	defaultPollInterval = time.Second
	defaultPollTimeout  = 3 * time.Second
	defaultHistorySize  = 50
	defaultRetention    = 7 * 24 * time.Hour
)

// Validate implements the Validator interface and applies defaults.
func (c *MonitorConfig) Validate() error {
	if c.ModelFile == "" {
		return errModelFileRequired
	}

	if c.Source.Type == "" {
		return errSourceRequired
	}

	if c.Source.Name == "" {
		c.Source.Name = c.Source.Type
	}

	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.GRPCAddr == "" {
		c.GRPCAddr = defaultGRPCAddr
	}

	if time.Duration(c.PollInterval) == 0 {
		c.PollInterval = Duration(defaultPollInterval)
	}

	if time.Duration(c.PollTimeout) == 0 {
		c.PollTimeout = Duration(defaultPollTimeout)
	}

	if c.HistorySize <= 0 {
		c.HistorySize = defaultHistorySize
	}

	if time.Duration(c.Retention) == 0 {
		c.Retention = Duration(defaultRetention)
	}

	return nil
}
