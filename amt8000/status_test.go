package amt8000

import (
	"testing"

	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/stretchr/testify/require"
)

func statusPayload() []byte {
	resp := make([]byte, 143)
	resp[0] = 0x01
	copy(resp[1:4], []byte{2, 0, 7})
	resp[12] = 0x07          // zones 1-3 enabled
	resp[20] = 0x03<<5 | 0x2 // armed, siren
	resp[21] = 0x80 | 0x01 | 0x08
	resp[38] = 0x02 // zone 2 open
	resp[46] = 0x04 // zone 3 violated
	resp[offsetTroubles] = 1 << 0x01
	resp[99] = 0x01
	resp[118] = 0x01
	resp[offsetBattery] = 0x03
	return resp
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus(statusPayload())
	require.NoError(t, err)

	require.Equal(t, "AMT-8000", status.Model)
	require.Equal(t, "2.0.7", status.Version)
	require.Equal(t, StateArmed, status.State)
	require.True(t, status.Siren)
	require.False(t, status.ZonesFiring)
	require.True(t, status.Tamper)
	require.Equal(t, BatteryStatusMiddle, status.Battery)

	require.Len(t, status.Zones, 64)
	require.True(t, status.Zones[0].Enabled)
	require.True(t, status.Zones[1].Open)
	require.True(t, status.Zones[2].Violated)
	require.False(t, status.Zones[3].Enabled)
	require.Equal(t, 64, status.Zones[63].Number)

	require.Len(t, status.Partitions, 16)
	require.Equal(t, Partition{Number: 1, Enabled: true, Armed: true, Fired: true}, status.Partitions[0])

	require.True(t, status.Sirens[0].Tamper)
	require.True(t, status.Repeaters[1].LowBattery)
}

func TestParseStatusShort(t *testing.T) {
	_, err := ParseStatus(make([]byte, 20))
	require.Error(t, err)
}

func TestStatusEvent(t *testing.T) {
	status, err := ParseStatus(statusPayload())
	require.NoError(t, err)

	ev := status.Event()
	require.Equal(t, alarm.Ptr(alarm.ArmingAway), ev.Arming)
	require.Equal(t, alarm.Ptr(true), ev.Triggered)
	require.Equal(t, alarm.ZoneClosed, ev.Zones[1])
	require.Equal(t, alarm.ZoneOpen, ev.Zones[2])
	require.Equal(t, alarm.ZoneTriggered, ev.Zones[3])
	require.Len(t, ev.Zones, 64)
	require.Equal(t, alarm.Ptr(75), ev.Battery)
	require.Equal(t, alarm.Ptr(false), ev.BatteryProblem)
	require.Equal(t, alarm.Ptr(true), ev.Tamper)
	require.Equal(t, alarm.Ptr(true), ev.AlarmMemory)
	require.Nil(t, ev.ACPower)
	require.Equal(t, alarm.Ptr("AMT-8000"), ev.Model)
	require.Equal(t, alarm.Ptr("2.0.7"), ev.Version)
}

func TestStatusEventStates(t *testing.T) {
	for state, expected := range map[State]alarm.Arming{
		StateDisarmed: alarm.ArmingOff,
		StatePartial:  alarm.ArmingStay,
		StateArmed:    alarm.ArmingAway,
	} {
		t.Run(state.String(), func(t *testing.T) {
			ev := Status{State: state}.Event()
			require.Equal(t, alarm.Ptr(expected), ev.Arming)
			require.Equal(t, alarm.Ptr(false), ev.Triggered)
			require.Nil(t, ev.Battery)
		})
	}

	require.Nil(t, Status{State: 0x02}.Event().Arming)
}

func TestBatteryStatus(t *testing.T) {
	for b, expected := range map[BatteryStatus]struct {
		level   int
		problem bool
	}{
		BatteryStatusUnknown:        {0, false},
		BatteryStatusMissing:        {0, true},
		BatteryStatusShortCircuited: {0, true},
		BatteryStatusDead:           {0, true},
		BatteryStatusLow:            {25, true},
		BatteryStatusMiddle:         {75, false},
		BatteryStatusFull:           {100, false},
	} {
		t.Run(b.String(), func(t *testing.T) {
			require.Equal(t, expected.level, b.Level())
			require.Equal(t, expected.problem, b.Problem())
		})
	}
}

func TestBatteryStatusFor(t *testing.T) {
	resp := make([]byte, minStatusLength)
	resp[offsetTroubles] = 1 << 0x04
	require.Equal(t, BatteryStatusShortCircuited, batteryStatusFor(resp))
	resp[offsetTroubles] = 1 << 0x05
	require.Equal(t, BatteryStatusMissing, batteryStatusFor(resp))
	resp[offsetTroubles] = 0
	resp[offsetBattery] = 0x01
	require.Equal(t, BatteryStatusDead, batteryStatusFor(resp))
	resp[offsetBattery] = 0x04
	require.Equal(t, BatteryStatusFull, batteryStatusFor(resp))
	resp[offsetBattery] = 0x00
	require.Equal(t, BatteryStatusUnknown, batteryStatusFor(resp))
}
