// Package bridge wires a panel protocol adapter to a messaging bus: it keeps
// the panel session alive, merges what the panel reports into the state
// model, publishes what changed and executes commands received from the bus.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// Config configures a Bridge.
type Config struct {
	Topic                  string
	Zones                  []int
	CommandTimeout         time.Duration
	PanicDuration          time.Duration
	ClearTriggeredOnDisarm bool
	QueueSize              int
	Manager                ManagerConfig
}

// Bridge connects one panel to the bus.
type Bridge struct {
	cfg        Config
	log        *log.Logger
	adapter    alarm.Adapter
	bus        Bus
	publisher  *Publisher
	manager    *Manager
	dispatcher *Dispatcher
	commands   chan alarm.Command

	// mu serializes every model mutation together with issuing its publishes.
	mu    sync.Mutex
	model *alarm.Model

	panicMu    sync.Mutex
	panicTimer *time.Timer
}

var _ alarm.Handler = (*Bridge)(nil)

func New(cfg Config, adapter alarm.Adapter, bus Bus, logger *log.Logger) *Bridge {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.PanicDuration <= 0 {
		cfg.PanicDuration = 30 * time.Second
	}
	if cfg.Manager.PollTimeout <= 0 {
		cfg.Manager.PollTimeout = cfg.CommandTimeout
	}

	caps := adapter.Capabilities()
	b := &Bridge{
		cfg:       cfg,
		log:       logger,
		adapter:   adapter,
		bus:       bus,
		publisher: NewPublisher(bus, cfg.Topic, logger.WithPrefix("publisher")),
		commands:  make(chan alarm.Command, cfg.QueueSize),
		model:     alarm.NewModel(cfg.Zones, caps.Partitions),
	}
	b.manager = NewManager(adapter, b, b.publisher.Availability, cfg.Manager, logger.WithPrefix("connection"))
	b.dispatcher = NewDispatcher(caps, b.manager, cfg.CommandTimeout, cfg.ClearTriggeredOnDisarm, logger.WithPrefix("dispatcher"))
	return b
}

// Run runs the bridge until ctx is done, publishing availability offline
// before returning.
func (b *Bridge) Run(ctx context.Context) error {
	b.bus.OnConnect(func() {
		b.publisher.Availability(b.manager.Online())
	})
	if err := b.bus.Subscribe(b.publisher.Topic(alarm.TopicCommand), b.Enqueue); err != nil {
		return fmt.Errorf("could not subscribe to commands: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.manager.Run(ctx)
	})
	g.Go(func() error {
		b.consume(ctx)
		return nil
	})
	err := g.Wait()

	b.stopPanicTimer()
	b.log.Info("publishing offline availability")
	b.publisher.Offline()
	return err
}

// Enqueue parses a command payload received from the bus and queues it.
// Unknown payloads and a full queue are logged and dropped.
func (b *Bridge) Enqueue(payload string) {
	cmd, err := alarm.ParseCommand(payload)
	if err != nil {
		b.log.Warn("ignoring command", "err", err)
		commandCounter.WithLabelValues("unknown", "ignored").Inc()
		return
	}
	select {
	case b.commands <- cmd:
		b.log.Debug("command queued", "command", cmd)
	default:
		b.log.Warn("command queue is full, dropping command", "command", cmd)
		commandCounter.WithLabelValues(cmd.String(), "dropped").Inc()
	}
}

func (b *Bridge) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-b.commands:
			if err := b.Execute(ctx, cmd); err != nil {
				if errors.Is(err, alarm.ErrShutdown) {
					b.log.Debug("command abandoned", "err", err)
					continue
				}
				b.log.Error("command failed", "err", err)
			}
		}
	}
}

// Execute dispatches cmd and applies its effect once acknowledged.
func (b *Bridge) Execute(ctx context.Context, cmd alarm.Command) error {
	ev, err := b.dispatcher.Dispatch(ctx, cmd)
	commandCounter.WithLabelValues(cmd.String(), result(err)).Inc()
	if err != nil {
		return err
	}
	b.log.Info("command executed", "command", cmd)
	b.apply(ev)
	if cmd.Action == alarm.ActionPanic {
		b.schedulePanicOff(ctx)
	}
	return nil
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, alarm.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, alarm.ErrAckTimeout):
		return "timeout"
	case errors.Is(err, alarm.ErrRejected):
		return "rejected"
	case errors.Is(err, alarm.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, alarm.ErrShutdown):
		return "shutdown"
	default:
		return "error"
	}
}

// schedulePanicOff turns panic off after the panic duration and queues a
// SirenOff when the adapter is able to silence the siren.
func (b *Bridge) schedulePanicOff(ctx context.Context) {
	b.panicMu.Lock()
	defer b.panicMu.Unlock()
	if b.panicTimer != nil {
		b.panicTimer.Stop()
	}
	b.panicTimer = time.AfterFunc(b.cfg.PanicDuration, func() {
		if ctx.Err() != nil {
			return
		}
		b.apply(alarm.Event{Panic: alarm.Ptr(false)})
		if !b.adapter.Capabilities().SirenOff {
			return
		}
		cmd := alarm.Command{Action: alarm.ActionSirenOff}
		select {
		case b.commands <- cmd:
			b.log.Debug("command queued", "command", cmd)
		default:
			b.log.Warn("command queue is full, dropping command", "command", cmd)
			commandCounter.WithLabelValues(cmd.String(), "dropped").Inc()
		}
	})
}

func (b *Bridge) stopPanicTimer() {
	b.panicMu.Lock()
	defer b.panicMu.Unlock()
	if b.panicTimer != nil {
		b.panicTimer.Stop()
	}
}

func (b *Bridge) apply(ev alarm.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	changes := b.model.Apply(ev)
	b.publisher.Publish(changes)
	alarmStateGauge.Set(float64(b.model.Status()))
}

// Event merges a decoded panel report.
func (b *Bridge) Event(ev alarm.Event) {
	reportCounter.WithLabelValues(b.adapter.Protocol()).Inc()
	b.apply(ev)
}

func (b *Bridge) Authenticating() {
	b.log.Debug("authenticating")
}

// FrameError counts a frame dropped by the decoder. The connection and the
// state are left untouched.
func (b *Bridge) FrameError(err error) {
	invalidFrameCounter.WithLabelValues(b.adapter.Protocol()).Inc()
	b.log.Debug("invalid frame", "err", err)
}

// Model runs fn with the state model, serialized with every mutation.
func (b *Bridge) Model(fn func(m *alarm.Model)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.model)
}

// State returns the current connection state.
func (b *Bridge) State() string {
	return b.manager.State()
}
