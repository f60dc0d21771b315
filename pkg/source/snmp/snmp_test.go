package snmp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/source"
)

type fakeClient struct {
	connectErr error
	packets    []*gosnmp.SnmpPacket
	getErr     error
	closed     bool
}

func (f *fakeClient) Connect() error {
	return f.connectErr
}

func (f *fakeClient) Get(_ []string) (*gosnmp.SnmpPacket, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}

	if len(f.packets) == 0 {
		return nil, errors.New("no scripted packet left")
	}

	packet := f.packets[0]
	f.packets = f.packets[1:]

	return packet, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

const testConfig = `{
	"host": "10.0.0.20",
	"oids": [
		{"oid": ".1.3.6.1.4.1.9999.1.1", "code": "F30012", "kind": "fault", "description": "Inverter bridge fault", "component": "inverter"},
		{"oid": ".1.3.6.1.4.1.9999.1.2", "code": "A05010", "kind": "alarm", "component": "fan"}
	]
}`

func intPacket(values map[string]int) *gosnmp.SnmpPacket {
	packet := &gosnmp.SnmpPacket{}
	for oid, v := range values {
		packet.Variables = append(packet.Variables, gosnmp.SnmpPDU{
			Name:  "." + oid,
			Type:  gosnmp.Integer,
			Value: v,
		})
	}

	return packet
}

func newTestSource(t *testing.T, fake *fakeClient) *SNMPSource {
	t.Helper()

	src, err := NewSNMPSource(context.Background(), "pdu", json.RawMessage(testConfig))
	require.NoError(t, err)

	s, ok := src.(*SNMPSource)
	require.True(t, ok)

	s.newClient = func(_ *Config) (Client, error) {
		return fake, nil
	}

	return s
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "missing host",
			config:  Config{OIDs: []OIDMapping{{OID: "1.3.6.1", Code: "F1"}}},
			wantErr: errHostRequired,
		},
		{
			name:    "no oids",
			config:  Config{Host: "10.0.0.20"},
			wantErr: errNoOIDs,
		},
		{
			name: "oid without code",
			config: Config{
				Host: "10.0.0.20",
				OIDs: []OIDMapping{{OID: "1.3.6.1"}},
			},
			wantErr: errOIDCode,
		},
		{
			name: "bad kind",
			config: Config{
				Host: "10.0.0.20",
				OIDs: []OIDMapping{{OID: "1.3.6.1", Code: "F1", Kind: "notice"}},
			},
			wantErr: errOIDKind,
		},
		{
			name: "snmpv3",
			config: Config{
				Host:    "10.0.0.20",
				Version: Version3,
				OIDs:    []OIDMapping{{OID: "1.3.6.1", Code: "F1"}},
			},
			wantErr: errUnsupportedVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{
		Host: "10.0.0.20",
		OIDs: []OIDMapping{{OID: ".1.3.6.1", Code: "F1"}},
	}

	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint16(defaultPort), cfg.Port)
	assert.Equal(t, defaultCommunity, cfg.Community)
	assert.Equal(t, Version2c, cfg.Version)
	assert.Equal(t, defaultRetries, cfg.Retries)
	assert.NotZero(t, cfg.Timeout)
	assert.Equal(t, "1.3.6.1", cfg.OIDs[0].OID, "leading dot should be stripped")
}

func TestSnapshotPoll(t *testing.T) {
	ctx := context.Background()
	fake := &fakeClient{packets: []*gosnmp.SnmpPacket{
		intPacket(map[string]int{
			"1.3.6.1.4.1.9999.1.1": 1,
			"1.3.6.1.4.1.9999.1.2": 2,
		}),
		intPacket(map[string]int{
			"1.3.6.1.4.1.9999.1.1": 0,
			"1.3.6.1.4.1.9999.1.2": 1,
		}),
	}}
	src := newTestSource(t, fake)

	require.NoError(t, src.Connect(ctx))
	assert.Equal(t, models.ModeSnapshot, src.Mode())

	// TruthValue false (2) must not assert.
	events, err := src.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.KindFault, events[0].Kind)
	assert.Equal(t, "F30012", events[0].Code)
	assert.Equal(t, "Inverter bridge fault", events[0].Description)
	assert.Equal(t, "inverter", events[0].ComponentHint)

	events, err = src.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.KindAlarm, events[0].Kind)
	assert.Equal(t, "A05010", events[0].Code)

	assert.Equal(t, models.HealthConnected, src.Health())
}

func TestPollNotConnected(t *testing.T) {
	src := newTestSource(t, &fakeClient{})

	_, err := src.Poll(context.Background())
	require.ErrorIs(t, err, source.ErrNotConnected)
}

func TestGetFailureIsTransport(t *testing.T) {
	ctx := context.Background()
	fake := &fakeClient{getErr: errors.New("i/o timeout")}
	src := newTestSource(t, fake)

	require.NoError(t, src.Connect(ctx))

	_, err := src.Poll(ctx)
	require.Error(t, err)
	assert.False(t, source.IsDataError(err))
	assert.Equal(t, models.HealthDegraded, src.Health())
}

func TestMissingOIDIsDataError(t *testing.T) {
	ctx := context.Background()
	fake := &fakeClient{packets: []*gosnmp.SnmpPacket{
		intPacket(map[string]int{"1.3.6.1.4.1.9999.1.1": 1}),
	}}
	src := newTestSource(t, fake)

	require.NoError(t, src.Connect(ctx))

	_, err := src.Poll(ctx)
	require.ErrorIs(t, err, source.ErrMalformed)
	assert.True(t, source.IsDataError(err))
}

func TestNoSuchObjectIsDataError(t *testing.T) {
	ctx := context.Background()
	packet := &gosnmp.SnmpPacket{Variables: []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.4.1.9999.1.1", Type: gosnmp.NoSuchObject},
		{Name: ".1.3.6.1.4.1.9999.1.2", Type: gosnmp.Integer, Value: 2},
	}}
	fake := &fakeClient{packets: []*gosnmp.SnmpPacket{packet}}
	src := newTestSource(t, fake)

	require.NoError(t, src.Connect(ctx))

	_, err := src.Poll(ctx)
	require.ErrorIs(t, err, source.ErrMalformed)
}

func TestDisconnectClosesClient(t *testing.T) {
	ctx := context.Background()
	fake := &fakeClient{}
	src := newTestSource(t, fake)

	require.NoError(t, src.Connect(ctx))
	require.NoError(t, src.Disconnect())

	assert.True(t, fake.closed)
	assert.Equal(t, models.HealthDisconnected, src.Health())
	require.NoError(t, src.Disconnect())
}
