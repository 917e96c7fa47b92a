package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// NATS is a Bus backed by a NATS server. Topics map to subjects replacing
// "/" with "."; NATS has no retained messages.
type NATS struct {
	url  string
	name string
	user string
	pass string
	log  *log.Logger

	mu        sync.Mutex
	conn      *nats.Conn
	onConnect []func()
	subs      map[string]func(string)
}

func NewNATS(cfg Config, logger *log.Logger) *NATS {
	url := cfg.NATSURL
	if url == "" {
		url = nats.DefaultURL
	}
	name := cfg.MQTTClientID
	if name == "" {
		name = "intelbras2mqtt"
	}
	return &NATS{
		url:  url,
		name: name,
		user: cfg.MQTTUsername,
		pass: cfg.MQTTPassword,
		log:  logger,
		subs: map[string]func(string){},
	}
}

// Subject converts a topic into a NATS subject.
func Subject(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func (n *NATS) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name(n.name),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.ConnectHandler(func(*nats.Conn) {
			n.log.Info("connected to nats")
			n.connected()
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			n.log.Info("reconnected to nats", "url", c.ConnectedUrl())
			n.connected()
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				n.log.Warn("lost connection to nats", "err", err)
			}
		}),
	}
	if n.user != "" {
		opts = append(opts, nats.UserInfo(n.user, n.pass))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := nats.Connect(n.url, opts...)
	if err != nil {
		return fmt.Errorf("could not connect to nats: %w", err)
	}

	n.mu.Lock()
	n.conn = conn
	subs := make(map[string]func(string), len(n.subs))
	for topic, fn := range n.subs {
		subs[topic] = fn
	}
	n.mu.Unlock()
	for topic, fn := range subs {
		if err := n.subscribe(conn, topic, fn); err != nil {
			return err
		}
	}
	if conn.IsConnected() {
		n.connected()
	}
	return nil
}

func (n *NATS) connected() {
	n.mu.Lock()
	callbacks := append([]func(){}, n.onConnect...)
	n.mu.Unlock()
	for _, fn := range callbacks {
		go fn()
	}
}

// Publish hands the message to the client's outgoing buffer, the token is
// already done.
func (n *NATS) Publish(topic, payload string, _ bool) Token {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn == nil {
		return doneToken{nats.ErrConnectionClosed}
	}
	return doneToken{conn.Publish(Subject(topic), []byte(payload))}
}

type doneToken struct {
	err error
}

func (t doneToken) Wait() error { return t.err }

// Subscribe subscribes to topic. Subscriptions survive reconnections.
func (n *NATS) Subscribe(topic string, fn func(payload string)) error {
	n.mu.Lock()
	n.subs[topic] = fn
	conn := n.conn
	n.mu.Unlock()
	if conn == nil {
		return nil
	}
	return n.subscribe(conn, topic, fn)
}

func (n *NATS) subscribe(conn *nats.Conn, topic string, fn func(string)) error {
	if _, err := conn.Subscribe(Subject(topic), func(msg *nats.Msg) {
		fn(string(msg.Data))
	}); err != nil {
		return fmt.Errorf("could not subscribe to %s: %w", topic, err)
	}
	return nil
}

func (n *NATS) OnConnect(fn func()) {
	n.mu.Lock()
	n.onConnect = append(n.onConnect, fn)
	conn := n.conn
	n.mu.Unlock()
	if conn != nil && conn.IsConnected() {
		go fn()
	}
}

func (n *NATS) Close() error {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Drain()
}
