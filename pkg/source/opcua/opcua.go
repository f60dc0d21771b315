// Package opcua polls boolean fault and alarm tags from an OPC UA
// server and turns value changes into raw events. A tag flipping to
// true asserts its code, flipping back to false clears it, so the
// source runs in edge mode.
package opcua

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gopcua "github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/source"
)

const closeTimeout = 5 * time.Second

// OPCUASource implements source.Source against an OPC UA server.
type OPCUASource struct {
	name      string
	config    Config
	newClient func(endpoint string, opts ...gopcua.Option) (Client, error)

	mu         sync.Mutex
	client     Client
	readIDs    []*ua.ReadValueID
	prev       []bool
	connected  bool
	lastPollOK bool
}

// NewOPCUASource is the registry factory for OPC UA sources.
func NewOPCUASource(_ context.Context, name string, raw json.RawMessage) (source.Source, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse opcua source config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid opcua source config: %w", err)
	}

	return &OPCUASource{
		name:      name,
		config:    cfg,
		newClient: defaultNewClient,
	}, nil
}

func defaultNewClient(endpoint string, opts ...gopcua.Option) (Client, error) {
	return gopcua.NewClient(endpoint, opts...)
}

func (o *OPCUASource) Connect(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.connected {
		return nil
	}

	readIDs := make([]*ua.ReadValueID, 0, len(o.config.Nodes))

	for _, node := range o.config.Nodes {
		id, err := ua.ParseNodeID(node.NodeID)
		if err != nil {
			return fmt.Errorf("failed to parse node id %q: %w", node.NodeID, err)
		}

		readIDs = append(readIDs, &ua.ReadValueID{
			NodeID:      id,
			AttributeID: ua.AttributeIDValue,
		})
	}

	client, err := o.newClient(o.config.Endpoint, o.clientOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create opcua client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", o.config.Endpoint, err)
	}

	o.client = client
	o.readIDs = readIDs
	o.prev = nil
	o.connected = true
	o.lastPollOK = true

	return nil
}

func (o *OPCUASource) clientOptions() []gopcua.Option {
	opts := []gopcua.Option{
		gopcua.SecurityModeString(o.config.SecurityMode),
		gopcua.SecurityPolicy(o.config.SecurityPolicy),
		gopcua.ApplicationName(o.config.ApplicationName),
		gopcua.AutoReconnect(true),
	}

	if o.config.Username != "" {
		opts = append(opts, gopcua.AuthUsername(o.config.Username, o.config.Password))
	} else {
		opts = append(opts, gopcua.AuthAnonymous())
	}

	return opts
}

// Poll reads every configured tag and emits the changes since the last
// poll. The first poll after Connect asserts all tags that are already
// true, which seeds the reconciler with the server's current state.
func (o *OPCUASource) Poll(ctx context.Context) ([]models.RawEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.connected {
		return nil, source.ErrNotConnected
	}

	resp, err := o.client.Read(ctx, &ua.ReadRequest{
		TimestampsToReturn: ua.TimestampsToReturnBoth,
		NodesToRead:        o.readIDs,
	})
	if err != nil {
		o.lastPollOK = false
		return nil, fmt.Errorf("failed to read %d nodes from %s: %w", len(o.readIDs), o.config.Endpoint, err)
	}

	if len(resp.Results) != len(o.config.Nodes) {
		o.lastPollOK = false
		return nil, fmt.Errorf("%w: %s: got %d, want %d",
			source.ErrMalformed, errResultCount, len(resp.Results), len(o.config.Nodes))
	}

	current := make([]bool, len(o.config.Nodes))

	for i, result := range resp.Results {
		if result.Status != ua.StatusOK {
			o.lastPollOK = false
			return nil, fmt.Errorf("%w: node %q status %s",
				source.ErrMalformed, o.config.Nodes[i].NodeID, result.Status)
		}

		active, ok := variantToBool(result.Value)
		if !ok {
			o.lastPollOK = false
			return nil, fmt.Errorf("%w: node %q has unsupported value type",
				source.ErrMalformed, o.config.Nodes[i].NodeID)
		}

		current[i] = active
	}

	events := o.diff(current)
	o.prev = current
	o.lastPollOK = true

	return events, nil
}

func (o *OPCUASource) diff(current []bool) []models.RawEvent {
	var events []models.RawEvent

	for i, active := range current {
		was := o.prev != nil && o.prev[i]
		if active == was {
			continue
		}

		node := &o.config.Nodes[i]

		if active {
			events = append(events, models.RawEvent{
				Kind:          node.EventKind(),
				Code:          node.Code,
				Description:   node.Description,
				ComponentHint: node.Component,
			})
		} else {
			events = append(events, models.RawEvent{
				Kind: models.KindClear,
				Code: node.Code,
			})
		}
	}

	return events
}

func (o *OPCUASource) Disconnect() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.connected {
		return nil
	}

	client := o.client
	o.client = nil
	o.prev = nil
	o.connected = false

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := client.Close(ctx); err != nil {
		return fmt.Errorf("failed to close opcua client: %w", err)
	}

	return nil
}

func (o *OPCUASource) Health() models.SourceHealth {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case !o.connected:
		return models.HealthDisconnected
	case !o.lastPollOK:
		return models.HealthDegraded
	default:
		return models.HealthConnected
	}
}

func (*OPCUASource) Mode() models.ReconcileMode {
	return models.ModeEdge
}

func (o *OPCUASource) Name() string {
	return o.name
}

func variantToBool(v *ua.Variant) (value, ok bool) {
	if v == nil {
		return false, false
	}

	switch val := v.Value().(type) {
	case bool:
		return val, true
	case int8:
		return val != 0, true
	case uint8:
		return val != 0, true
	case int16:
		return val != 0, true
	case uint16:
		return val != 0, true
	case int32:
		return val != 0, true
	case uint32:
		return val != 0, true
	case int64:
		return val != 0, true
	case uint64:
		return val != 0, true
	default:
		return false, false
	}
}
