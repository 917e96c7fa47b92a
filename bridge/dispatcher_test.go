package bridge

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

type senderFunc func(ctx context.Context, cmd alarm.Command) error

func (f senderFunc) Send(ctx context.Context, cmd alarm.Command) error { return f(ctx, cmd) }

func TestDispatch(t *testing.T) {
	block := senderFunc(func(ctx context.Context, _ alarm.Command) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ok := senderFunc(func(context.Context, alarm.Command) error { return nil })

	t.Run("acknowledged", func(t *testing.T) {
		d := NewDispatcher(listenerCaps, ok, time.Second, false, log.New(io.Discard))
		ev, err := d.Dispatch(context.Background(), alarm.Arm(alarm.ScopeNight))
		require.NoError(t, err)
		require.Equal(t, map[alarm.Partition]bool{alarm.PartitionB: true}, ev.Partitions)
		require.False(t, ev.ClearTriggeredZones)
	})

	t.Run("unsupported", func(t *testing.T) {
		d := NewDispatcher(pollerCaps, senderFunc(func(context.Context, alarm.Command) error {
			t.Fatal("should not send")
			return nil
		}), time.Second, false, log.New(io.Discard))
		_, err := d.Dispatch(context.Background(), alarm.Arm(alarm.ScopeNight))
		require.ErrorIs(t, err, alarm.ErrUnsupported)
	})

	t.Run("timeout", func(t *testing.T) {
		d := NewDispatcher(pollerCaps, block, 20*time.Millisecond, false, log.New(io.Discard))
		_, err := d.Dispatch(context.Background(), alarm.Disarm(alarm.ScopeGlobal))
		require.ErrorIs(t, err, alarm.ErrAckTimeout)
		var cerr *alarm.CommandError
		require.True(t, errors.As(err, &cerr))
		require.Equal(t, alarm.Disarm(alarm.ScopeGlobal), cerr.Command)
	})

	t.Run("shutdown", func(t *testing.T) {
		d := NewDispatcher(pollerCaps, block, time.Second, false, log.New(io.Discard))
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)
		_, err := d.Dispatch(ctx, alarm.Disarm(alarm.ScopeGlobal))
		require.ErrorIs(t, err, alarm.ErrShutdown)
		require.False(t, errors.Is(err, alarm.ErrAckTimeout))
	})

	t.Run("rejected", func(t *testing.T) {
		d := NewDispatcher(pollerCaps, senderFunc(func(context.Context, alarm.Command) error {
			return &alarm.RejectedError{Code: 0xe4, Reason: "open zones"}
		}), time.Second, false, log.New(io.Discard))
		_, err := d.Dispatch(context.Background(), alarm.Arm(alarm.ScopeAway))
		require.ErrorIs(t, err, alarm.ErrRejected)
	})

	t.Run("clear triggered zones on disarm", func(t *testing.T) {
		d := NewDispatcher(pollerCaps, ok, time.Second, true, log.New(io.Discard))
		ev, err := d.Dispatch(context.Background(), alarm.Disarm(alarm.ScopeGlobal))
		require.NoError(t, err)
		require.True(t, ev.ClearTriggeredZones)
		require.Equal(t, alarm.Ptr(alarm.ArmingOff), ev.Arming)

		ev, err = d.Dispatch(context.Background(), alarm.Arm(alarm.ScopeAway))
		require.NoError(t, err)
		require.False(t, ev.ClearTriggeredZones)
	})
}
