package publish

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

//go:generate mockgen -destination=mock_publish.go -package=publish github.com/carverauto/faultradar/pkg/publish Client

// Client is the subset of the paho client the publisher uses.
type Client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}
