package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/charmbracelet/log"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	qos            = 1
	publishTimeout = 5 * time.Second
	quiesce        = 250 // milliseconds
)

// MQTT is a Bus backed by an MQTT broker.
type MQTT struct {
	client paho.Client
	log    *log.Logger

	mu        sync.Mutex
	onConnect []func()
	subs      map[string]paho.MessageHandler
}

func NewMQTT(cfg Config, logger *log.Logger) (*MQTT, error) {
	if cfg.MQTTBroker == "" {
		return nil, &alarm.ConfigError{Field: "mqtt broker", Err: errors.New("missing broker address")}
	}
	m := &MQTT{
		log:  logger,
		subs: map[string]paho.MessageHandler{},
	}
	m.client = paho.NewClient(m.options(cfg))
	return m, nil
}

func (m *MQTT) options(cfg Config) *paho.ClientOptions {
	port := cfg.MQTTPort
	if port == 0 {
		port = 1883
	}
	clientID := cfg.MQTTClientID
	if clientID == "" {
		clientID = "intelbras2mqtt"
	}

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, port)).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetOnConnectHandler(m.connected).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			m.log.Warn("lost connection to the broker", "err", err)
		})
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, "offline", qos, true)
	}
	return opts
}

// connected restores the subscriptions and runs the OnConnect callbacks.
func (m *MQTT) connected(c paho.Client) {
	m.log.Info("connected to the broker")
	m.mu.Lock()
	subs := make(map[string]paho.MessageHandler, len(m.subs))
	for topic, h := range m.subs {
		subs[topic] = h
	}
	callbacks := append([]func(){}, m.onConnect...)
	m.mu.Unlock()

	for topic, h := range subs {
		token := c.Subscribe(topic, qos, h)
		go func(topic string) {
			if token.WaitTimeout(publishTimeout) && token.Error() != nil {
				m.log.Error("could not subscribe", "topic", topic, "err", token.Error())
			}
		}(topic)
	}
	for _, fn := range callbacks {
		go fn()
	}
}

// Connect blocks until the first connection to the broker succeeds.
func (m *MQTT) Connect(ctx context.Context) error {
	token := m.client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("could not connect to the broker: %w", err)
		}
		return nil
	}
}

func (m *MQTT) Publish(topic, payload string, retained bool) Token {
	return mqttToken{
		topic: topic,
		token: m.client.Publish(topic, qos, retained, payload),
	}
}

type mqttToken struct {
	topic string
	token paho.Token
}

func (t mqttToken) Wait() error {
	if !t.token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", t.topic)
	}
	return t.token.Error()
}

func (m *MQTT) Subscribe(topic string, fn func(payload string)) error {
	h := func(_ paho.Client, msg paho.Message) {
		fn(string(msg.Payload()))
	}
	m.mu.Lock()
	m.subs[topic] = h
	m.mu.Unlock()

	if !m.client.IsConnectionOpen() {
		return nil
	}
	token := m.client.Subscribe(topic, qos, h)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out subscribing to %s", topic)
	}
	return token.Error()
}

// OnConnect registers fn to run on every connection, running it right away
// when already connected.
func (m *MQTT) OnConnect(fn func()) {
	m.mu.Lock()
	m.onConnect = append(m.onConnect, fn)
	m.mu.Unlock()
	if m.client.IsConnectionOpen() {
		go fn()
	}
}

func (m *MQTT) Close() error {
	m.client.Disconnect(quiesce)
	return nil
}
