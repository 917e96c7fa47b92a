// Package bus implements the messaging buses the bridge publishes to.
package bus

import (
	"context"
	"fmt"

	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/charmbracelet/log"
)

// Token tracks a publish in flight.
type Token interface {
	// Wait blocks until the broker took the message, or gives up.
	Wait() error
}

// Bus is a connected messaging bus. Publish never blocks on the broker, the
// outcome is reported by the returned Token.
type Bus interface {
	Connect(ctx context.Context) error
	Publish(topic, payload string, retained bool) Token
	Subscribe(topic string, fn func(payload string)) error
	OnConnect(fn func())
	Close() error
}

// Config configures the bus.
type Config struct {
	Kind string

	MQTTBroker   string
	MQTTPort     int
	MQTTUsername string
	MQTTPassword string
	MQTTClientID string

	NATSURL string

	// WillTopic receives "offline" when the bridge vanishes without
	// saying goodbye. Only MQTT supports it.
	WillTopic string
}

// New creates the bus selected by cfg.Kind.
func New(cfg Config, logger *log.Logger) (Bus, error) {
	switch cfg.Kind {
	case "", "mqtt":
		return NewMQTT(cfg, logger)
	case "nats":
		return NewNATS(cfg, logger), nil
	default:
		return nil, &alarm.ConfigError{Field: "bus", Err: fmt.Errorf("unknown bus %q", cfg.Kind)}
	}
}
