// Package alarm holds the protocol independent view of an Intelbras panel:
// the canonical state model, the semantic events adapters decode, and the
// command vocabulary accepted from the messaging bus.
package alarm

import "fmt"

// Status is the overall alarm status.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusDisarmed
	StatusArmedAway
	StatusArmedHome
	StatusTriggered
)

func (s Status) String() string {
	switch s {
	case StatusDisarmed:
		return "Disarmed"
	case StatusArmedAway:
		return "ArmedAway"
	case StatusArmedHome:
		return "ArmedHome"
	case StatusTriggered:
		return "Triggered"
	default:
		return "Unknown"
	}
}

// ZoneStatus is the status of a single zone.
type ZoneStatus uint8

const (
	ZoneUnknown ZoneStatus = iota
	ZoneClosed
	ZoneOpen
	ZoneTriggered
)

func (z ZoneStatus) String() string {
	switch z {
	case ZoneClosed:
		return "Closed"
	case ZoneOpen:
		return "Open"
	case ZoneTriggered:
		return "Triggered"
	default:
		return "Unknown"
	}
}

// Partition identifies one of the independently armable areas of a
// partitioned panel.
type Partition byte

const (
	PartitionA Partition = 'A'
	PartitionB Partition = 'B'
	PartitionC Partition = 'C'
	PartitionD Partition = 'D'
)

// AllPartitions lists every partition supported by the listener protocol.
var AllPartitions = []Partition{PartitionA, PartitionB, PartitionC, PartitionD}

func (p Partition) String() string {
	return string(rune(p))
}

// ParsePartition parses a partition letter, case insensitive.
func ParsePartition(s string) (Partition, error) {
	if len(s) == 1 {
		c := s[0]
		if c >= 'a' && c <= 'd' {
			c -= 'a' - 'A'
		}
		if c >= 'A' && c <= 'D' {
			return Partition(c), nil
		}
	}
	return 0, fmt.Errorf("invalid partition: %q", s)
}

// Arming is the single global armed flag of panels without partitions.
type Arming uint8

const (
	ArmingOff Arming = iota
	ArmingStay
	ArmingAway
)

func (a Arming) String() string {
	switch a {
	case ArmingStay:
		return "stay"
	case ArmingAway:
		return "away"
	default:
		return "off"
	}
}

// Event is either a decoded panel report or the local effect of an
// acknowledged command. Nil fields are not carried by the event and leave
// the corresponding state untouched.
type Event struct {
	Partitions     map[Partition]bool
	Arming         *Arming
	Triggered      *bool
	Zones          map[int]ZoneStatus
	Battery        *int
	ACPower        *bool
	BatteryProblem *bool
	Tamper         *bool
	Panic          *bool
	AlarmMemory    *bool
	Model          *string
	Version        *string

	// ClearTriggeredZones closes every zone currently Triggered.
	ClearTriggeredZones bool
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
