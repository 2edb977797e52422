package channel

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTClient is the subset of the paho client the MQTT channel uses.
type MQTTClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	IsConnected() bool
}

type pahoClient struct {
	client mqtt.Client
}

func (p *pahoClient) Connect() mqtt.Token     { return p.client.Connect() }
func (p *pahoClient) Disconnect(quiesce uint) { p.client.Disconnect(quiesce) }
func (p *pahoClient) IsConnected() bool       { return p.client.IsConnected() }

func (p *pahoClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return p.client.Publish(topic, qos, retained, payload)
}

func (p *pahoClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return p.client.Subscribe(topic, qos, callback)
}
