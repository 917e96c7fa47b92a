package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/looplab/fsm"
)

// Connection states.
const (
	StateDisconnected   = "disconnected"
	StateConnecting     = "connecting"
	StateAuthenticating = "authenticating"
	StateConnected      = "connected"
	StateDegraded       = "degraded"
)

var allStates = []string{
	StateDisconnected,
	StateConnecting,
	StateAuthenticating,
	StateConnected,
	StateDegraded,
}

const (
	eventConnect      = "connect"
	eventAuthenticate = "authenticate"
	eventEstablished  = "established"
	eventDegrade      = "degrade"
	eventRecover      = "recover"
	eventDrop         = "drop"
)

var errSessionEnded = errors.New("panel session ended")

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	PollInterval    time.Duration
	PollTimeout     time.Duration
	MaxPollFailures int
	BackoffInitial  time.Duration
	BackoffMax      time.Duration

	// Timer drives the reconnect backoff, nil uses a real timer.
	Timer backoff.Timer
}

func (c *ManagerConfig) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Minute
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 8 * time.Second
	}
	if c.MaxPollFailures <= 0 {
		c.MaxPollFailures = 3
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = max(time.Minute, c.BackoffInitial)
	}
}

// Manager owns the panel session lifecycle: it connects through the
// adapter, reconnects with a capped exponential backoff, polls the panel
// and signals availability changes.
type Manager struct {
	adapter        alarm.Adapter
	handler        alarm.Handler
	onAvailability func(online bool)
	cfg            ManagerConfig
	log            *log.Logger
	fsm            *fsm.FSM

	online   atomic.Bool
	stopping atomic.Bool

	mu      sync.Mutex
	session alarm.Session
}

// NewManager creates a Manager. Events decoded by the adapter go to h and
// onAvailability is called every time the panel goes online or offline.
func NewManager(
	adapter alarm.Adapter,
	h alarm.Handler,
	onAvailability func(online bool),
	cfg ManagerConfig,
	logger *log.Logger,
) *Manager {
	cfg.setDefaults()
	m := &Manager{
		adapter:        adapter,
		handler:        h,
		onAvailability: onAvailability,
		cfg:            cfg,
		log:            logger,
	}
	m.fsm = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: eventConnect, Src: []string{StateDisconnected}, Dst: StateConnecting},
			{Name: eventAuthenticate, Src: []string{StateConnecting}, Dst: StateAuthenticating},
			{Name: eventEstablished, Src: []string{StateConnecting, StateAuthenticating}, Dst: StateConnected},
			{Name: eventDegrade, Src: []string{StateConnected}, Dst: StateDegraded},
			{Name: eventRecover, Src: []string{StateDegraded}, Dst: StateConnected},
			{Name: eventDrop, Src: []string{StateConnecting, StateAuthenticating, StateConnected, StateDegraded}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.entered(e.Src, e.Dst)
			},
		},
	)
	m.setStateGauge(StateDisconnected)
	return m
}

// State returns the current connection state.
func (m *Manager) State() string {
	return m.fsm.Current()
}

// Online reports whether the panel is reachable, that is, connected or
// degraded.
func (m *Manager) Online() bool {
	return m.online.Load()
}

func (m *Manager) entered(src, dst string) {
	m.log.Info("connection state changed", "from", src, "to", dst)
	m.setStateGauge(dst)

	online := dst == StateConnected || dst == StateDegraded
	if m.online.Swap(online) == online || m.stopping.Load() {
		return
	}
	if m.onAvailability != nil {
		m.onAvailability(online)
	}
}

func (m *Manager) setStateGauge(current string) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		connectionStateGauge.WithLabelValues(s).Set(v)
	}
}

func (m *Manager) transition(event string) {
	if !m.fsm.Can(event) {
		return
	}
	if err := m.fsm.Event(context.Background(), event); err != nil {
		m.log.Debug("ignoring connection event", "event", event, "state", m.fsm.Current(), "err", err)
	}
}

// Send forwards cmd to the current session.
func (m *Manager) Send(ctx context.Context, cmd alarm.Command) error {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return alarm.ErrNotConnected
	}
	return session.Send(ctx, cmd)
}

// Run connects to the panel and keeps reconnecting until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	defer m.stop()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.BackoffInitial
	bo.MaxInterval = m.cfg.BackoffMax
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	err := backoff.RetryNotifyWithTimer(func() error {
		err := m.serve(ctx, bo)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var cerr *alarm.ConfigError
		if errors.As(err, &cerr) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		reconnectCounter.Inc()
		m.log.Warn("panel connection failed", "err", err, "retry", next)
	}, m.cfg.Timer)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Manager) stop() {
	m.stopping.Store(true)
	m.transition(eventDrop)
	if err := m.adapter.Close(); err != nil {
		m.log.Warn("could not close adapter", "err", err)
	}
}

// serve opens one session and blocks until it ends.
func (m *Manager) serve(ctx context.Context, bo backoff.BackOff) error {
	m.transition(eventConnect)
	session, err := m.adapter.Open(ctx, &sessionHandler{m})
	if err != nil {
		m.transition(eventDrop)
		return err
	}
	bo.Reset()

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	m.transition(eventEstablished)

	sctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.poll(sctx, session)
	}()

	err = session.Serve(sctx)
	cancel()
	wg.Wait()

	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	if cerr := session.Close(); cerr != nil {
		m.log.Debug("could not close session", "err", cerr)
	}
	if ctx.Err() != nil {
		m.stopping.Store(true)
	}
	m.transition(eventDrop)

	if err == nil {
		return errSessionEnded
	}
	return fmt.Errorf("panel session ended: %w", err)
}

// poll polls right away and then on every interval. After MaxPollFailures
// consecutive failures the session is closed.
func (m *Manager) poll(ctx context.Context, session alarm.Session) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		pollCounter.Inc()
		pctx, cancel := context.WithTimeout(ctx, m.cfg.PollTimeout)
		err := session.Poll(pctx)
		cancel()
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			pollErrorCounter.Inc()
			failures++
			m.log.Warn("poll failed", "err", err, "failures", failures)
			if failures >= m.cfg.MaxPollFailures {
				m.log.Error("too many poll failures, dropping session", "failures", failures)
				_ = session.Close()
				return
			}
			m.transition(eventDegrade)
		default:
			failures = 0
			m.transition(eventRecover)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type sessionHandler struct {
	m *Manager
}

func (h *sessionHandler) Event(ev alarm.Event) {
	h.m.handler.Event(ev)
}

func (h *sessionHandler) Authenticating() {
	h.m.transition(eventAuthenticate)
	h.m.handler.Authenticating()
}

func (h *sessionHandler) FrameError(err error) {
	h.m.handler.FrameError(err)
}
