package isecnet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/charmbracelet/log"
)

// Config configures a Listener.
type Config struct {
	Address     string
	Password    string
	Partitions  []alarm.Partition
	ReadTimeout time.Duration
	Logger      *log.Logger
}

// Listener waits for the panel to connect and serves one panel at a time.
type Listener struct {
	cfg Config
	log *log.Logger

	mu       sync.Mutex
	ln       net.Listener
	closed   bool
	incoming chan net.Conn
	active   atomic.Bool
}

var _ alarm.Adapter = (*Listener)(nil)

func New(cfg Config) (*Listener, error) {
	if err := alarm.CheckPassword(cfg.Password); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Listener{
		cfg:      cfg,
		log:      cfg.Logger,
		incoming: make(chan net.Conn, 1),
	}, nil
}

func (l *Listener) Protocol() string { return "isecnet" }

func (l *Listener) Capabilities() alarm.Capabilities {
	return alarm.Capabilities{
		Partitions: l.cfg.Partitions,
		ArmScopes: []alarm.Scope{
			alarm.ScopeAway,
			alarm.ScopeHome,
			alarm.ScopeNight,
			alarm.ScopeVacation,
			alarm.ScopeCustomBypass,
			alarm.ScopePartition,
		},
		DisarmScopes: []alarm.Scope{alarm.ScopeGlobal, alarm.ScopeAway, alarm.ScopePartition},
		PanicKinds:   []alarm.PanicKind{alarm.PanicAudible},
		SirenOff:     true,
	}
}

// Addr returns the bound address, nil before the first Open.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Open binds the listening socket if needed and waits for the panel.
func (l *Listener) Open(ctx context.Context, h alarm.Handler) (alarm.Session, error) {
	if err := l.bind(); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case conn := <-l.incoming:
		l.active.Store(true)
		l.log.Info("panel connected", "remote", conn.RemoteAddr())
		return &session{
			conn:    conn,
			cfg:     l.cfg,
			log:     l.log.With("remote", conn.RemoteAddr()),
			h:       h,
			sem:     make(chan struct{}, 1),
			done:    make(chan struct{}),
			release: func() { l.active.Store(false) },
		}, nil
	}
}

func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

func (l *Listener) bind() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return net.ErrClosed
	}
	if l.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("could not listen: %w", err)
	}
	l.log.Info("waiting for the panel", "addr", ln.Addr())
	l.ln = ln
	go l.accept(ln)
	return nil
}

func (l *Listener) accept(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Error("could not accept connection", "err", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if l.active.Load() {
			l.refuse(conn)
			continue
		}
		select {
		case l.incoming <- conn:
		default:
			l.refuse(conn)
		}
	}
}

func (l *Listener) refuse(conn net.Conn) {
	l.log.Warn("refusing connection, a panel is already connected", "remote", conn.RemoteAddr())
	_ = conn.Close()
}

type session struct {
	conn    net.Conn
	cfg     Config
	log     *log.Logger
	h       alarm.Handler
	release func()

	writeMu sync.Mutex
	sem     chan struct{}

	pendingMu sync.Mutex
	pending   chan Frame

	closeOnce sync.Once
	done      chan struct{}
}

func (s *session) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	var sc Scanner
	buf := make([]byte, 256)
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return fmt.Errorf("could not set read deadline: %w", err)
		}
		n, err := s.conn.Read(buf)
		if n > 0 {
			sc.Write(buf[:n])
			s.drain(&sc)
		}
		if err != nil {
			return fmt.Errorf("could not read from panel: %w", err)
		}
	}
}

func (s *session) drain(sc *Scanner) {
	for {
		f, err := sc.Next()
		if errors.Is(err, ErrIncomplete) {
			return
		}
		if err != nil {
			s.log.Warn("dropping invalid frame", "err", err)
			s.h.FrameError(err)
			continue
		}
		s.handle(f)
	}
}

func (s *session) handle(f Frame) {
	switch {
	case f.Heartbeat:
		s.log.Debug("heartbeat")
		s.ack()
		return
	case f.Command == cmdConnInfo:
		info, err := ParseConnInfo(f.Content)
		if err != nil {
			s.log.Warn("invalid identification", "err", err)
		} else {
			s.log.Info("panel identified", "channel", info.Channel, "account", info.Account, "mac", info.MAC)
		}
		s.ack()
		return
	}

	s.pendingMu.Lock()
	pending := s.pending
	s.pending = nil
	s.pendingMu.Unlock()
	if pending != nil {
		pending <- f
		return
	}

	resp, err := ParseResponse(f)
	if err != nil || resp.Kind != ResponseData {
		s.log.Debug("ignoring unsolicited frame", "frame", hex.EncodeToString(f.Bytes()))
		return
	}
	if err := s.report(resp.Data); err != nil {
		s.log.Warn("invalid status report", "err", err)
	}
}

func (s *session) report(data []byte) error {
	status, err := ParseStatus(data)
	if err != nil {
		return err
	}
	s.log.Debug("status", "model", status.Model, "armed", status.Armed, "siren", status.Siren, "clock", status.Clock)
	s.h.Event(status.Event(s.cfg.Partitions))
	return nil
}

func (s *session) ack() {
	if err := s.write(ackFrame); err != nil {
		s.log.Warn("could not ack", "err", err)
	}
}

func (s *session) write(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.Write(b); err != nil {
		return fmt.Errorf("could not write to panel: %w", err)
	}
	return nil
}

// request writes a request frame and waits for the next frame the panel
// sends back. Only one request is in flight at a time.
func (s *session) request(ctx context.Context, payload []byte) (Response, error) {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-s.done:
		return Response{}, net.ErrClosed
	}

	reply := make(chan Frame, 1)
	s.pendingMu.Lock()
	s.pending = reply
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		s.pending = nil
		s.pendingMu.Unlock()
	}()

	if err := s.write(payload); err != nil {
		return Response{}, err
	}
	select {
	case f := <-reply:
		return ParseResponse(f)
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-s.done:
		return Response{}, net.ErrClosed
	}
}

func (s *session) Poll(ctx context.Context) error {
	payload, err := EncodeRequest(s.cfg.Password, mobileStatusFull, nil)
	if err != nil {
		return err
	}
	resp, err := s.request(ctx, payload)
	if err != nil {
		return fmt.Errorf("could not gather status: %w", err)
	}
	if resp.Kind != ResponseData {
		if err := resp.Err(); err != nil {
			return fmt.Errorf("could not gather status: %w", err)
		}
		return fmt.Errorf("could not gather status: unexpected acknowledgement")
	}
	if err := s.report(resp.Data); err != nil {
		return fmt.Errorf("could not gather status: %w", err)
	}
	return nil
}

func (s *session) Send(ctx context.Context, cmd alarm.Command) error {
	payload, err := EncodeCommand(s.cfg.Password, cmd)
	if err != nil {
		return err
	}
	s.log.Info("sending command", "command", cmd)
	resp, err := s.request(ctx, payload)
	if err != nil {
		return err
	}
	switch resp.Kind {
	case ResponseAck:
		return nil
	case ResponseNack:
		return resp.Err()
	default:
		// status data also acknowledges the command.
		return s.report(resp.Data)
	}
}

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
		s.release()
	})
	return err
}
