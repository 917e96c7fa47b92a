package amt8000

import "github.com/caarlos0/intelbras2mqtt/alarm"

// BatteryStatus is the condition of the panel's backup battery.
type BatteryStatus uint8

const (
	BatteryStatusUnknown BatteryStatus = iota
	BatteryStatusMissing
	BatteryStatusShortCircuited
	BatteryStatusDead
	BatteryStatusLow
	BatteryStatusMiddle
	BatteryStatusFull
)

var batteryNames = [...]string{
	BatteryStatusUnknown:        "unknown",
	BatteryStatusMissing:        "missing",
	BatteryStatusShortCircuited: "short-circuited",
	BatteryStatusDead:           "dead",
	BatteryStatusLow:            "low",
	BatteryStatusMiddle:         "middle",
	BatteryStatusFull:           "full",
}

// charge levels reported by the panel at offsetBattery.
var batteryLevels = map[byte]BatteryStatus{
	0x01: BatteryStatusDead,
	0x02: BatteryStatusLow,
	0x03: BatteryStatusMiddle,
	0x04: BatteryStatusFull,
}

func (b BatteryStatus) String() string {
	if int(b) < len(batteryNames) {
		return batteryNames[b]
	}
	return batteryNames[BatteryStatusUnknown]
}

// Level approximates the charge percentage.
func (b BatteryStatus) Level() int {
	switch b {
	case BatteryStatusLow:
		return 25
	case BatteryStatusMiddle:
		return 75
	case BatteryStatusFull:
		return 100
	}
	return 0
}

// Problem reports whether the battery needs attention.
func (b BatteryStatus) Problem() bool {
	return b != BatteryStatusUnknown && b <= BatteryStatusLow
}

// report fills the battery fields of ev. An unknown status leaves them
// unset so the last known values are kept.
func (b BatteryStatus) report(ev *alarm.Event) {
	if b == BatteryStatusUnknown {
		return
	}
	ev.Battery = alarm.Ptr(b.Level())
	ev.BatteryProblem = alarm.Ptr(b.Problem())
}

func batteryStatusFor(resp []byte) BatteryStatus {
	switch troubles := resp[offsetTroubles]; {
	case troubles&(1<<4) != 0:
		return BatteryStatusShortCircuited
	case troubles&(1<<5) != 0:
		return BatteryStatusMissing
	}
	return batteryLevels[resp[offsetBattery]]
}
