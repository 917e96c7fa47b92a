package amt8000

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/caarlos0/sync/cio"
	"github.com/charmbracelet/log"
	"github.com/j-keck/arping"
)

const allPartitions = 0xff

const subCmdStay = 0x02

const (
	panicSilent  = 0x00
	panicAudible = 0x01
)

// Config configures a Poller.
type Config struct {
	Host        string
	Port        string
	Password    string
	DialTimeout time.Duration
	ReadTimeout time.Duration
	Logger      *log.Logger
}

// Poller connects to an AMT-8000 and polls it for status.
type Poller struct {
	cfg  Config
	log  *log.Logger
	addr string

	mu      sync.Mutex
	current *session
}

var _ alarm.Adapter = (*Poller)(nil)

func New(cfg Config) (*Poller, error) {
	if cfg.Host == "" {
		return nil, &alarm.ConfigError{Field: "host", Err: errors.New("missing panel address")}
	}
	if err := alarm.CheckPassword(cfg.Password); err != nil {
		return nil, err
	}
	if cfg.Port == "" {
		cfg.Port = "9009"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Poller{
		cfg:  cfg,
		log:  cfg.Logger,
		addr: net.JoinHostPort(cfg.Host, cfg.Port),
	}, nil
}

// MacAddress resolves the hardware address of the panel.
func MacAddress(ip string) (string, error) {
	hw, _, err := arping.Ping(net.ParseIP(ip))
	if err != nil {
		return "", fmt.Errorf("could not get the mac address: %w", err)
	}
	return hw.String(), nil
}

func (p *Poller) Protocol() string { return "amt8000" }

func (p *Poller) Capabilities() alarm.Capabilities {
	return alarm.Capabilities{
		ArmScopes:    []alarm.Scope{alarm.ScopeGlobal, alarm.ScopeAway, alarm.ScopeHome},
		DisarmScopes: []alarm.Scope{alarm.ScopeGlobal, alarm.ScopeAway},
		PanicKinds:   []alarm.PanicKind{alarm.PanicAudible, alarm.PanicSilent},
		SirenOff:     true,
	}
}

// Open connects to the panel and authenticates.
func (p *Poller) Open(ctx context.Context, h alarm.Handler) (alarm.Session, error) {
	d := net.Dialer{Timeout: p.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return nil, fmt.Errorf("could not connect: %w", err)
	}

	s := &session{
		conn: conn,
		cfg:  p.cfg,
		log:  p.log.With("remote", conn.RemoteAddr()),
		h:    h,
		sem:  make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	h.Authenticating()
	if err := s.auth(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("could not auth: %w", err)
	}
	s.log.Info("authenticated")

	p.mu.Lock()
	p.current = s
	p.mu.Unlock()
	return s, nil
}

func (p *Poller) Close() error {
	p.mu.Lock()
	s := p.current
	p.current = nil
	p.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

type session struct {
	conn net.Conn
	cfg  Config
	log  *log.Logger
	h    alarm.Handler
	sc   Scanner

	sem chan struct{}

	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

func (s *session) auth(ctx context.Context) error {
	payload, err := makeAuthPayload(s.cfg.Password)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	}
	if _, err := s.conn.Write(payload); err != nil {
		return err
	}
	f, err := s.readFrame(func(buf []byte) (int, error) {
		return cio.TimeoutReader(s.conn, s.cfg.ReadTimeout).Read(buf)
	})
	if err != nil {
		return err
	}
	return parseAuthResponse(f)
}

// Serve waits until the session fails or is closed. The panel only talks
// when asked, so there is nothing to read in between requests.
func (s *session) Serve(ctx context.Context) error {
	select {
	case <-ctx.Done():
		_ = s.Close()
		return ctx.Err()
	case <-s.done:
		s.errMu.Lock()
		defer s.errMu.Unlock()
		if s.err != nil {
			return s.err
		}
		return net.ErrClosed
	}
}

func (s *session) Poll(ctx context.Context) error {
	status, err := s.status(ctx)
	if err != nil {
		return fmt.Errorf("could not gather status: %w", err)
	}
	s.h.Event(status.Event())
	return nil
}

// Send refreshes the status and then sends cmd.
func (s *session) Send(ctx context.Context, cmd alarm.Command) error {
	if err := s.Poll(ctx); err != nil {
		return err
	}

	s.log.Info("sending command", "command", cmd)
	switch cmd.Action {
	case alarm.ActionArm:
		sub := byte(subCmdArm)
		if cmd.Scope == alarm.ScopeHome {
			sub = subCmdStay
		}
		return s.command(ctx, cmdArm, []byte{allPartitions, sub}, armAcked)
	case alarm.ActionDisarm:
		return s.command(ctx, cmdArm, []byte{allPartitions, subCmdDisarm}, disarmAcked)
	case alarm.ActionPanic:
		kind := byte(panicAudible)
		if cmd.Panic == alarm.PanicSilent {
			kind = panicSilent
		}
		return s.command(ctx, cmdPanic, []byte{kind}, panicAcked)
	case alarm.ActionSirenOff:
		return s.command(ctx, cmdTurnOffSiren, []byte{allPartitions}, echoAcked(cmdTurnOffSiren))
	default:
		return fmt.Errorf("%s: %w", cmd, alarm.ErrUnsupported)
	}
}

func (s *session) status(ctx context.Context) (Status, error) {
	f, err := s.request(ctx, cmdStatus, nil)
	if err != nil {
		return Status{}, err
	}
	if f.Command != cmdStatus {
		return Status{}, fmt.Errorf("unexpected reply %#04x:\n%s", f.Command, hex.Dump(f.Payload))
	}
	return ParseStatus(f.Payload)
}

func (s *session) command(ctx context.Context, cmd int, payload []byte, acked func(Frame) bool) error {
	f, err := s.request(ctx, cmd, payload)
	if err != nil {
		return err
	}
	if acked(f) {
		return nil
	}
	return rejection(cmd, f)
}

func armAcked(f Frame) bool {
	return f.Command == cmdArm && len(f.Payload) > 1 && (f.Payload[1] == 0x91 || f.Payload[1] == 0x99)
}

func disarmAcked(f Frame) bool {
	return f.Command == cmdArm && len(f.Payload) > 1 && f.Payload[1] == 0x90
}

func panicAcked(f Frame) bool {
	return f.Command&0xff == 0xfe || f.Command == cmdPanic
}

func echoAcked(cmd int) func(Frame) bool {
	return func(f Frame) bool {
		return f.Command == cmd
	}
}

func rejection(cmd int, f Frame) error {
	var code byte
	if len(f.Payload) > 0 {
		code = f.Payload[0]
	}
	if f.Command>>8 == 0xf0 {
		if cmd == cmdArm {
			return fmt.Errorf("%w: %w", ErrOpenZones, &alarm.RejectedError{Code: code, Reason: "open zones"})
		}
		return &alarm.RejectedError{Code: code, Reason: "command refused"}
	}
	return &alarm.RejectedError{Code: code, Reason: fmt.Sprintf("unexpected reply %#04x", f.Command)}
}

// request writes a frame and reads its reply, skipping frames that do not
// answer it. Only one request is in flight at a time. Transport failures
// other than timeouts close the session.
func (s *session) request(ctx context.Context, cmd int, payload []byte) (Frame, error) {
	select {
	case <-s.done:
		return Frame{}, net.ErrClosed
	default:
	}
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-s.done:
		return Frame{}, net.ErrClosed
	}

	deadline := time.Now().Add(s.cfg.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return Frame{}, s.fail(fmt.Errorf("could not set deadline: %w", err))
	}
	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetDeadline(time.Now()) })
	defer stop()

	// a reply that arrived after an earlier request timed out is stale.
	s.sc.Reset()
	s.log.Debug("request", "cmd", fmt.Sprintf("%#04x", cmd))
	if _, err := s.conn.Write(makePayload(cmd, payload)); err != nil {
		return Frame{}, s.transportError(ctx, fmt.Errorf("could not write to panel: %w", err))
	}
	for {
		f, err := s.readFrame(s.conn.Read)
		if err != nil {
			return Frame{}, s.transportError(ctx, fmt.Errorf("could not read from panel: %w", err))
		}
		if repliesTo(cmd, f) {
			return f, nil
		}
		s.log.Debug("skipping stale reply", "cmd", fmt.Sprintf("%#04x", cmd), "reply", fmt.Sprintf("%#04x", f.Command))
	}
}

// repliesTo reports whether f can be the panel's answer to cmd.
func repliesTo(cmd int, f Frame) bool {
	switch {
	case f.Command == cmd, f.Command>>8 == 0xf0:
		return true
	case cmd == cmdPanic:
		return f.Command&0xff == 0xfe
	}
	return false
}

func (s *session) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return err
	}
	return s.fail(err)
}

func (s *session) readFrame(read func([]byte) (int, error)) (Frame, error) {
	buf := make([]byte, 256)
	for {
		f, err := s.sc.Next()
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, ErrIncomplete) {
			s.log.Warn("dropping invalid frame", "err", err)
			s.h.FrameError(err)
			continue
		}
		n, err := read(buf)
		if n > 0 {
			s.sc.Write(buf[:n])
		}
		if err != nil && n == 0 {
			return Frame{}, err
		}
	}
}

func (s *session) fail(err error) error {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	_ = s.close(false)
	return err
}

func (s *session) Close() error {
	return s.close(true)
}

func (s *session) close(graceful bool) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if graceful {
			_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
			if _, werr := s.conn.Write(makePayload(cmdDisconnect, nil)); werr != nil {
				s.log.Debug("could not disconnect", "err", werr)
			}
		}
		err = s.conn.Close()
	})
	return err
}
