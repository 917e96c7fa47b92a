package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/caarlos0/intelbras2mqtt/bus"
)

type message struct {
	topic    string
	payload  string
	retained bool
}

type fakeBus struct {
	// block, when set, holds every Wait until it is closed, like a broker
	// that stopped answering.
	block chan struct{}

	mu        sync.Mutex
	messages  []message
	subs      map[string]func(string)
	onConnect []func()
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: map[string]func(string){}}
}

func (b *fakeBus) Publish(topic, payload string, retained bool) bus.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message{topic, payload, retained})
	return fakeToken{b.block}
}

type fakeToken struct {
	block chan struct{}
}

func (t fakeToken) Wait() error {
	if t.block != nil {
		<-t.block
	}
	return nil
}

func (b *fakeBus) Subscribe(topic string, fn func(string)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = fn
	return nil
}

func (b *fakeBus) OnConnect(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnect = append(b.onConnect, fn)
}

func (b *fakeBus) published() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]message{}, b.messages...)
}

func (b *fakeBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}

func (b *fakeBus) deliver(topic, payload string) bool {
	b.mu.Lock()
	fn, ok := b.subs[topic]
	b.mu.Unlock()
	if ok {
		fn(payload)
	}
	return ok
}

func (b *fakeBus) connected() {
	b.mu.Lock()
	fns := append([]func(){}, b.onConnect...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type fakeSession struct {
	send     func(ctx context.Context, cmd alarm.Command) error
	poll     func(ctx context.Context) error
	serveErr error

	mu    sync.Mutex
	sent  []alarm.Command
	polls int

	once sync.Once
	done chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{done: make(chan struct{})}
}

func (s *fakeSession) Serve(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.serveErr
	}
}

func (s *fakeSession) Poll(ctx context.Context) error {
	s.mu.Lock()
	s.polls++
	s.mu.Unlock()
	if s.poll != nil {
		return s.poll(ctx)
	}
	return nil
}

func (s *fakeSession) Send(ctx context.Context, cmd alarm.Command) error {
	s.mu.Lock()
	s.sent = append(s.sent, cmd)
	s.mu.Unlock()
	if s.send != nil {
		return s.send(ctx, cmd)
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fakeSession) commands() []alarm.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]alarm.Command{}, s.sent...)
}

func (s *fakeSession) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

type fakeAdapter struct {
	caps alarm.Capabilities
	open func(ctx context.Context, n int, h alarm.Handler) (alarm.Session, error)

	mu    sync.Mutex
	opens int
}

func (a *fakeAdapter) Protocol() string                 { return "fake" }
func (a *fakeAdapter) Capabilities() alarm.Capabilities { return a.caps }
func (a *fakeAdapter) Close() error                     { return nil }

func (a *fakeAdapter) Open(ctx context.Context, h alarm.Handler) (alarm.Session, error) {
	a.mu.Lock()
	a.opens++
	n := a.opens
	a.mu.Unlock()
	return a.open(ctx, n, h)
}

func (a *fakeAdapter) openCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opens
}

// fakeTimer fires right away, recording the requested delays.
type fakeTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (t *fakeTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()
	select {
	case t.c <- time.Now():
	default:
	}
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) recorded() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration{}, t.delays...)
}

// blockOpen waits for the panel until ctx is done.
func blockOpen(ctx context.Context, _ int, _ alarm.Handler) (alarm.Session, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
