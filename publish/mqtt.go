package publish

import (
	"context"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"dxlistener/config"
	"dxlistener/spot"
)

// mqttClient is the subset of mqtt.Client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes spot JSON to <topic>/<band>/<mode>.
type MQTTPublisher struct {
	Counters
	client  mqttClient
	topic   string
	qos     byte
	retain  bool
	timeout time.Duration
}

// NewMQTTPublisher connects to the broker. Paho reconnects on its own after
// the initial connection succeeds.
func NewMQTTPublisher(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("%s-%d", cfg.ClientID, time.Now().Unix()))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("MQTT: connected to %s", brokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT: connection lost: %v (will reconnect)", err)
	})

	client := mqtt.NewClient(opts)
	log.Printf("Connecting to MQTT broker at %s...", brokerURL)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", brokerURL, token.Error())
	}
	return newMQTTPublisher(client, cfg), nil
}

func newMQTTPublisher(client mqttClient, cfg config.MQTTConfig) *MQTTPublisher {
	return &MQTTPublisher{
		client:  client,
		topic:   cfg.Topic,
		qos:     byte(cfg.QoS),
		retain:  cfg.Retain,
		timeout: 5 * time.Second,
	}
}

func (p *MQTTPublisher) Deliver(_ context.Context, s *spot.Spot) error {
	payload, err := s.JSON()
	if err != nil {
		p.failed.Add(1)
		return nil
	}
	if !p.client.IsConnected() {
		p.failed.Add(1)
		return nil
	}
	token := p.client.Publish(topicFor(p.topic, s), p.qos, p.retain, payload)
	if !token.WaitTimeout(p.timeout) {
		p.failed.Add(1)
		log.Printf("MQTT: publish timed out after %s", p.timeout)
		return nil
	}
	if err := token.Error(); err != nil {
		p.failed.Add(1)
		log.Printf("MQTT: publish failed: %v", err)
		return nil
	}
	p.published.Add(1)
	return nil
}

// Close disconnects, waiting up to 250ms for in-flight messages.
func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}
