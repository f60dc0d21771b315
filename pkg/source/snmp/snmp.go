// Package snmp polls fault and alarm flags over SNMP. Every poll reads
// the full OID set and reports the codes currently active, so the
// source runs in snapshot mode and codes that stop reading 1 fall away
// on the next reconcile.
package snmp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/source"
)

// SNMPSource implements source.Source against an SNMP agent.
type SNMPSource struct {
	name      string
	config    Config
	newClient func(cfg *Config) (Client, error)

	mu         sync.Mutex
	client     Client
	connected  bool
	lastPollOK bool
}

// NewSNMPSource is the registry factory for SNMP sources.
func NewSNMPSource(_ context.Context, name string, raw json.RawMessage) (source.Source, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse snmp source config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snmp source config: %w", err)
	}

	return &SNMPSource{
		name:      name,
		config:    cfg,
		newClient: defaultNewClient,
	}, nil
}

func defaultNewClient(cfg *Config) (Client, error) {
	client := &gosnmp.GoSNMP{
		Target:             cfg.Host,
		Port:               cfg.Port,
		Community:          cfg.Community,
		Timeout:            time.Duration(cfg.Timeout),
		Retries:            cfg.Retries,
		ExponentialTimeout: true,
		MaxOids:            gosnmp.MaxOids,
	}

	switch cfg.Version {
	case Version1:
		client.Version = gosnmp.Version1
	case Version2c:
		client.Version = gosnmp.Version2c
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedVersion, cfg.Version)
	}

	return &clientImpl{client: client}, nil
}

// clientImpl adapts gosnmp.GoSNMP to the Client interface.
type clientImpl struct {
	client *gosnmp.GoSNMP
}

func (c *clientImpl) Connect() error {
	return c.client.Connect()
}

func (c *clientImpl) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	return c.client.Get(oids)
}

func (c *clientImpl) Close() error {
	if c.client.Conn == nil {
		return nil
	}

	return c.client.Conn.Close()
}

func (s *SNMPSource) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	client, err := s.newClient(&s.config)
	if err != nil {
		return err
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s:%d: %w", s.config.Host, s.config.Port, err)
	}

	s.client = client
	s.connected = true
	s.lastPollOK = true

	return nil
}

// Poll reads every configured OID and returns assertions for the codes
// currently active.
func (s *SNMPSource) Poll(ctx context.Context) ([]models.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, source.ErrNotConnected
	}

	values, err := s.readAll()
	if err != nil {
		s.lastPollOK = false
		return nil, err
	}

	var events []models.RawEvent

	for i := range s.config.OIDs {
		oid := &s.config.OIDs[i]

		value, ok := values[oid.OID]
		if !ok {
			s.lastPollOK = false
			return nil, fmt.Errorf("%w: oid %s missing from response", source.ErrMalformed, oid.OID)
		}

		if value != 1 {
			continue
		}

		events = append(events, models.RawEvent{
			Kind:          oid.EventKind(),
			Code:          oid.Code,
			Description:   oid.Description,
			ComponentHint: oid.Component,
		})
	}

	s.lastPollOK = true

	return events, nil
}

// readAll fetches the configured OIDs in MaxOids sized chunks and
// returns their integer values keyed by OID without the leading dot.
func (s *SNMPSource) readAll() (map[string]int64, error) {
	oids := make([]string, len(s.config.OIDs))
	for i := range s.config.OIDs {
		oids[i] = s.config.OIDs[i].OID
	}

	values := make(map[string]int64, len(oids))

	for i := 0; i < len(oids); i += gosnmp.MaxOids {
		end := i + gosnmp.MaxOids
		if end > len(oids) {
			end = len(oids)
		}

		packet, err := s.client.Get(oids[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to get %d oids from %s: %w", end-i, s.config.Host, err)
		}

		for _, pdu := range packet.Variables {
			value, err := pduToInt(pdu)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", source.ErrMalformed, err)
			}

			values[normalizeOID(pdu.Name)] = value
		}
	}

	return values, nil
}

func (s *SNMPSource) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	client := s.client
	s.client = nil
	s.connected = false

	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close snmp client: %w", err)
	}

	return nil
}

func (s *SNMPSource) Health() models.SourceHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !s.connected:
		return models.HealthDisconnected
	case !s.lastPollOK:
		return models.HealthDegraded
	default:
		return models.HealthConnected
	}
}

func (*SNMPSource) Mode() models.ReconcileMode {
	return models.ModeSnapshot
}

func (s *SNMPSource) Name() string {
	return s.name
}

func normalizeOID(oid string) string {
	if len(oid) > 0 && oid[0] == '.' {
		return oid[1:]
	}

	return oid
}

func pduToInt(pdu gosnmp.SnmpPDU) (int64, error) {
	switch pdu.Type {
	case gosnmp.Integer:
		v, ok := pdu.Value.(int)
		if !ok {
			return 0, fmt.Errorf("oid %s integer has type %T", pdu.Name, pdu.Value)
		}

		return int64(v), nil
	case gosnmp.Counter32, gosnmp.Gauge32:
		v, ok := pdu.Value.(uint)
		if !ok {
			return 0, fmt.Errorf("oid %s gauge has type %T", pdu.Name, pdu.Value)
		}

		return int64(v), nil
	case gosnmp.Counter64:
		v, ok := pdu.Value.(uint64)
		if !ok {
			return 0, fmt.Errorf("oid %s counter64 has type %T", pdu.Name, pdu.Value)
		}

		return int64(v), nil
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return 0, fmt.Errorf("oid %s does not exist on the agent", pdu.Name)
	default:
		return 0, fmt.Errorf("oid %s has unsupported SNMP type %v", pdu.Name, pdu.Type)
	}
}
