package bridge

import (
	"path"

	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/caarlos0/intelbras2mqtt/bus"
	"github.com/charmbracelet/log"
)

// Bus is the messaging bus the bridge talks to.
type Bus interface {
	Publish(topic, payload string, retained bool) bus.Token
	Subscribe(topic string, fn func(payload string)) error
	// OnConnect registers fn to run on every (re)connection to the bus.
	OnConnect(fn func())
}

// Publisher publishes state changes under a topic prefix.
type Publisher struct {
	bus    Bus
	prefix string
	log    *log.Logger
}

func NewPublisher(bus Bus, prefix string, logger *log.Logger) *Publisher {
	return &Publisher{bus: bus, prefix: prefix, log: logger}
}

// Topic returns the full topic of a suffix.
func (p *Publisher) Topic(suffix string) string {
	return path.Join(p.prefix, suffix)
}

// Publish publishes every change as a retained message without waiting for
// the broker.
func (p *Publisher) Publish(changes []alarm.Change) {
	for _, c := range changes {
		topic, token := p.publish(c.Topic, c.Value)
		go p.wait(topic, token)
	}
}

// Availability publishes the availability signal without waiting for the
// broker.
func (p *Publisher) Availability(online bool) {
	go p.wait(p.availability(online))
}

// Offline publishes "offline" and waits for the broker, so it goes out
// before the bus is closed.
func (p *Publisher) Offline() {
	p.wait(p.availability(false))
}

func (p *Publisher) availability(online bool) (string, bus.Token) {
	value := "offline"
	if online {
		value = "online"
	}
	return p.publish(alarm.TopicAvailability, value)
}

func (p *Publisher) publish(suffix, value string) (string, bus.Token) {
	topic := p.Topic(suffix)
	p.log.Debug("publish", "topic", topic, "value", value)
	return topic, p.bus.Publish(topic, value, true)
}

func (p *Publisher) wait(topic string, token bus.Token) {
	if err := token.Wait(); err != nil {
		publishErrorCounter.Inc()
		p.log.Error("could not publish", "topic", topic, "err", err)
	}
}
