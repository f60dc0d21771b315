// Package publish mirrors reconciled snapshots onto an MQTT broker so
// external dashboards can follow plant state without polling the HTTP
// API. The full snapshot goes out retained on <prefix>/state; each
// component status change goes out on <prefix>/transitions/<id>.
package publish

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/carverauto/faultradar/pkg/config"
	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/state"
)

const (
	defaultTopicPrefix = "faultradar"
	defaultClientID    = "faultradar-monitor"
	subscribeBuffer    = 8
	disconnectQuiesce  = 250 // ms
	publishTimeout     = 5 * time.Second
)

// transitionMessage is the per-component change payload.
type transitionMessage struct {
	ComponentID string        `json:"component_id"`
	PrevStatus  models.Status `json:"prev_status"`
	NewStatus   models.Status `json:"new_status"`
	Codes       []string      `json:"codes,omitempty"`
	Sequence    uint64        `json:"sequence"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Publisher forwards published snapshots to an MQTT broker. A dead
// broker never stalls the poll pipeline: sends ride the snapshot
// subscription, drop under backpressure, and time out individually.
type Publisher struct {
	config    config.MQTTConfig
	store     *state.Store
	newClient func(cfg *config.MQTTConfig) Client

	mu     sync.Mutex
	client Client
	unsub  func()
	done   chan struct{}
	prev   map[string]models.Status
}

// New creates a publisher for the given store. Start is a no-op error
// when the config is disabled.
func New(cfg config.MQTTConfig, store *state.Store) *Publisher {
	return &Publisher{
		config:    cfg,
		store:     store,
		newClient: defaultNewClient,
	}
}

func defaultNewClient(cfg *config.MQTTConfig) Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.OnConnect = func(mqtt.Client) {
		log.Printf("Connected to MQTT broker %s", cfg.Broker)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	}

	return mqtt.NewClient(opts)
}

// Start connects to the broker and begins forwarding snapshots.
func (p *Publisher) Start() error {
	if !p.config.Enabled {
		return errDisabled
	}

	if p.config.Broker == "" {
		return errBrokerRequired
	}

	if p.config.ClientID == "" {
		p.config.ClientID = defaultClientID
	}

	if p.config.TopicPrefix == "" {
		p.config.TopicPrefix = defaultTopicPrefix
	}

	client := p.newClient(&p.config)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	ch, unsub := p.store.Subscribe(subscribeBuffer)

	p.mu.Lock()
	p.client = client
	p.unsub = unsub
	p.done = make(chan struct{})
	p.prev = nil
	p.mu.Unlock()

	go p.run(ch)

	log.Printf("MQTT publisher started, topic prefix %q", p.config.TopicPrefix)

	return nil
}

// Stop drains the subscription and disconnects from the broker.
// Stopping a publisher that never started is a no-op.
func (p *Publisher) Stop() {
	p.mu.Lock()
	unsub := p.unsub
	p.unsub = nil
	p.mu.Unlock()

	if unsub == nil {
		return
	}

	unsub()
	<-p.done

	p.client.Disconnect(disconnectQuiesce)
	p.client = nil
}

func (p *Publisher) run(ch <-chan *models.Snapshot) {
	defer close(p.done)

	for snap := range ch {
		p.publishSnapshot(snap)
	}
}

func (p *Publisher) publishSnapshot(snap *models.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("Failed to marshal snapshot: %v", err)
		return
	}

	p.publish(p.config.TopicPrefix+"/state", true, payload)

	next := make(map[string]models.Status, len(snap.Components))
	for id, cs := range snap.Components {
		next[id] = cs.Status
	}

	// The first snapshot after start seeds the baseline without
	// replaying transitions.
	if p.prev != nil {
		for _, cs := range snap.Components {
			prevStatus, seen := p.prev[cs.ComponentID]
			if !seen {
				prevStatus = models.StatusNormal
			}

			if prevStatus != cs.Status {
				p.publishTransition(snap, cs, prevStatus)
			}
		}
	}

	p.prev = next
}

func (p *Publisher) publishTransition(snap *models.Snapshot, cs models.ComponentState, prev models.Status) {
	msg := transitionMessage{
		ComponentID: cs.ComponentID,
		PrevStatus:  prev,
		NewStatus:   cs.Status,
		Codes:       cs.Codes(),
		Sequence:    snap.Sequence,
		Timestamp:   snap.GeneratedAt,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal transition: %v", err)
		return
	}

	p.publish(p.config.TopicPrefix+"/transitions/"+cs.ComponentID, false, payload)
}

func (p *Publisher) publish(topic string, retained bool, payload []byte) {
	token := p.client.Publish(topic, p.config.QoS, retained, payload)

	if !token.WaitTimeout(publishTimeout) {
		log.Printf("MQTT publish to %s timed out", topic)
		return
	}

	if err := token.Error(); err != nil {
		log.Printf("Failed to publish to %s: %v", topic, err)
	}
}
