package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/charmbracelet/log"
)

// Sender sends a command to the panel and waits for its acknowledgement.
type Sender interface {
	Send(ctx context.Context, cmd alarm.Command) error
}

// Dispatcher validates commands against the adapter capabilities, sends
// them and computes the optimistic state update for acknowledged ones.
type Dispatcher struct {
	caps           alarm.Capabilities
	sender         Sender
	timeout        time.Duration
	clearTriggered bool
	log            *log.Logger
}

func NewDispatcher(caps alarm.Capabilities, sender Sender, timeout time.Duration, clearTriggered bool, logger *log.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Dispatcher{
		caps:           caps,
		sender:         sender,
		timeout:        timeout,
		clearTriggered: clearTriggered,
		log:            logger,
	}
}

// Dispatch sends cmd and returns the event to apply once the panel
// acknowledged it. Failures are *alarm.CommandError.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd alarm.Command) (alarm.Event, error) {
	if err := d.caps.Supports(cmd); err != nil {
		return alarm.Event{}, err
	}

	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	if err := d.sender.Send(sctx, cmd); err != nil {
		return alarm.Event{}, &alarm.CommandError{Command: cmd, Err: classify(ctx, err)}
	}
	d.log.Debug("command acknowledged", "command", cmd, "took", time.Since(start))

	ev := d.caps.Effect(cmd)
	if cmd.Action == alarm.ActionDisarm && d.clearTriggered {
		ev.ClearTriggeredZones = true
	}
	return ev, nil
}

func classify(parent context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		return alarm.ErrShutdown
	case errors.Is(err, context.DeadlineExceeded):
		return alarm.ErrAckTimeout
	default:
		return err
	}
}
