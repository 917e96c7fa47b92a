package amt8000

import (
	"encoding/hex"
	"fmt"

	"github.com/caarlos0/intelbras2mqtt/alarm"
)

// State is the global arming state reported by the panel.
type State byte

const (
	StateDisarmed State = 0x00
	StatePartial  State = 0x01
	StateArmed    State = 0x03
)

func (s State) String() string {
	switch s {
	case StateDisarmed:
		return "Disarmed"
	case StatePartial:
		return "Partial"
	case StateArmed:
		return "Armed"
	default:
		return "Unknown"
	}
}

const (
	offsetState     = 20
	offsetTroubles  = 71
	offsetBattery   = 134
	minStatusLength = offsetBattery + 1
	zoneCount       = 64
	partitionCount  = 16
)

type Status struct {
	Model       string
	Version     string
	State       State
	ZonesFiring bool
	ZonesClosed bool
	Siren       bool
	Tamper      bool
	Battery     BatteryStatus
	Partitions  []Partition
	Zones       []Zone
	Sirens      []Siren
	Repeaters   []Repeater
}

type Zone struct {
	Number     int
	Enabled    bool
	Open       bool
	Violated   bool
	Anulated   bool
	Tamper     bool
	LowBattery bool
}

type Siren struct {
	Number     int
	Tamper     bool
	LowBattery bool
}

type Repeater struct {
	Number     int
	Tamper     bool
	LowBattery bool
}

type Partition struct {
	Number  int
	Enabled bool
	Armed   bool
	Fired   bool
	Firing  bool
	Stay    bool
}

// ParseStatus decodes the payload of a status reply.
func ParseStatus(resp []byte) (Status, error) {
	if len(resp) < minStatusLength {
		return Status{}, fmt.Errorf("invalid status:\n%s", hex.Dump(resp))
	}
	status := Status{
		Model:       modelName(resp[0]),
		Version:     version(resp[1:4]),
		State:       State(resp[offsetState] >> 5 & 0x03),
		ZonesFiring: resp[offsetState]&0x8 > 0,
		ZonesClosed: resp[offsetState]&0x4 > 0,
		Siren:       resp[offsetState]&0x2 > 0,
		Zones:       make([]Zone, zoneCount),
		Sirens:      make([]Siren, 2),
		Repeaters:   make([]Repeater, 2),
		Partitions:  make([]Partition, partitionCount),
	}

	for i := 0; i < partitionCount; i++ {
		octet := resp[21+i]
		status.Partitions[i] = Partition{
			Number:  i + 1,
			Enabled: octet&0x80 > 0,
			Armed:   octet&0x01 > 0,
			Firing:  octet&0x04 > 0,
			Fired:   octet&0x08 > 0,
			Stay:    octet&0x40 > 0,
		}
	}

	for i := range status.Zones {
		z := &status.Zones[i]
		z.Number = i + 1
		z.Enabled = bit(resp[12:20], i)
		z.Open = bit(resp[38:46], i)
		z.Violated = bit(resp[46:54], i)
		z.Anulated = bit(resp[54:62], i)
		z.Tamper = bit(resp[89:97], i)
		z.LowBattery = bit(resp[105:113], i)
	}

	for i := 0; i < 2; i++ {
		status.Sirens[i] = Siren{
			Number:     i + 1,
			Tamper:     resp[99+i]&0x01 > 0,
			LowBattery: resp[115+i]&0x01 > 0,
		}
		status.Repeaters[i] = Repeater{
			Number:     i + 1,
			Tamper:     resp[101+i]&0x01 > 0,
			LowBattery: resp[117+i]&0x01 > 0,
		}
	}

	status.Battery = batteryStatusFor(resp)
	status.Tamper = resp[offsetTroubles]&(1<<0x01) > 0
	return status, nil
}

func bit(octets []byte, i int) bool {
	return octets[i/8]&(1<<(i%8)) > 0
}

// Event converts the status into a normalized alarm event.
func (s Status) Event() alarm.Event {
	ev := alarm.Event{
		Triggered:   alarm.Ptr(s.Siren || s.ZonesFiring),
		Zones:       make(map[int]alarm.ZoneStatus, len(s.Zones)),
		Tamper:      alarm.Ptr(s.Tamper),
		AlarmMemory: alarm.Ptr(false),
		Model:       alarm.Ptr(s.Model),
		Version:     alarm.Ptr(s.Version),
	}

	switch s.State {
	case StateDisarmed:
		ev.Arming = alarm.Ptr(alarm.ArmingOff)
	case StatePartial:
		ev.Arming = alarm.Ptr(alarm.ArmingStay)
	case StateArmed:
		ev.Arming = alarm.Ptr(alarm.ArmingAway)
	}

	for _, z := range s.Zones {
		switch {
		case z.Violated:
			ev.Zones[z.Number] = alarm.ZoneTriggered
		case z.Open:
			ev.Zones[z.Number] = alarm.ZoneOpen
		default:
			ev.Zones[z.Number] = alarm.ZoneClosed
		}
	}

	for _, p := range s.Partitions {
		if p.Enabled && p.Fired {
			ev.AlarmMemory = alarm.Ptr(true)
		}
	}

	s.Battery.report(&ev)
	return ev
}

func version(b []byte) string {
	return fmt.Sprintf("%d.%d.%d", int(b[0]), int(b[1]), int(b[2]))
}

func modelName(b byte) string {
	switch b {
	case 0x01:
		return "AMT-8000"
	default:
		return "Unknown"
	}
}
