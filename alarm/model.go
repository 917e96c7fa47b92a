package alarm

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Topic suffixes of every published field.
const (
	TopicState         = "state"
	TopicBattery       = "battery_percentage"
	TopicACPower       = "ac_power"
	TopicSystemBattery = "system_battery"
	TopicTamper        = "tamper"
	TopicPanic         = "panic"
	TopicAlarmMemory   = "alarm_memory"
	TopicModel         = "model"
	TopicVersion       = "version"
	TopicAvailability  = "availability"
	TopicCommand       = "command"
)

// ZoneTopic is the topic suffix of a zone.
func ZoneTopic(id int) string {
	return "zone_" + strconv.Itoa(id)
}

// PartitionTopic is the topic suffix of a partition.
func PartitionTopic(p Partition) string {
	return "partition_" + strings.ToLower(p.String()) + "_state"
}

// Change is a single field whose value changed after applying an event.
type Change struct {
	Topic string
	Value string
}

// Zone is the last known state of a zone.
type Zone struct {
	ID      int
	Status  ZoneStatus
	Changed time.Time
}

// Model is the canonical last known state of the panel. It is not safe for
// concurrent use: callers serialize access.
type Model struct {
	partitions []Partition
	armed      map[Partition]bool
	arming     *Arming
	triggered  bool
	status     Status
	zones      map[int]*Zone
	values     map[string]string
	now        func() time.Time
}

// NewModel creates a model tracking the given zones and partitions. Without
// partitions the alarm status follows the global armed flag.
func NewModel(zones []int, partitions []Partition) *Model {
	m := &Model{
		partitions: slices.Clone(partitions),
		armed:      map[Partition]bool{},
		zones:      make(map[int]*Zone, len(zones)),
		values:     map[string]string{},
		now:        time.Now,
	}
	for _, id := range zones {
		m.zones[id] = &Zone{ID: id}
	}
	return m
}

// Status returns the current alarm status.
func (m *Model) Status() Status {
	return m.status
}

// Zone returns the state of a tracked zone.
func (m *Model) Zone(id int) (Zone, bool) {
	z, ok := m.zones[id]
	if !ok {
		return Zone{}, false
	}
	return *z, true
}

// Zones returns the tracked zone ids in ascending order.
func (m *Model) Zones() []int {
	ids := maps.Keys(m.zones)
	slices.Sort(ids)
	return ids
}

// PartitionArmed returns whether a partition is armed, and whether that is
// known at all.
func (m *Model) PartitionArmed(p Partition) (armed, known bool) {
	armed, known = m.armed[p]
	return
}

// Value returns the last value of a topic.
func (m *Model) Value(topic string) (string, bool) {
	v, ok := m.values[topic]
	return v, ok
}

// Apply merges ev and returns the fields that changed. Applying the same
// event twice yields no changes the second time.
func (m *Model) Apply(ev Event) []Change {
	var changes []Change
	set := func(topic, value string) {
		if old, ok := m.values[topic]; ok && old == value {
			return
		}
		m.values[topic] = value
		changes = append(changes, Change{Topic: topic, Value: value})
	}

	armingChanged := false
	if m.partitioned() {
		for _, p := range m.partitions {
			armed, ok := ev.Partitions[p]
			if !ok {
				continue
			}
			if old, known := m.armed[p]; !known || old != armed {
				armingChanged = true
			}
			m.armed[p] = armed
			set(PartitionTopic(p), onOff(armed, "ON", "OFF"))
		}
	} else if ev.Arming != nil && (m.arming == nil || *m.arming != *ev.Arming) {
		m.arming = Ptr(*ev.Arming)
		armingChanged = true
	}
	if ev.Triggered != nil && *ev.Triggered != m.triggered {
		m.triggered = *ev.Triggered
		armingChanged = true
	}

	now := m.now()
	ids := maps.Keys(ev.Zones)
	slices.Sort(ids)
	for _, id := range ids {
		m.setZone(id, ev.Zones[id], now, set)
	}
	if ev.ClearTriggeredZones {
		for _, id := range m.Zones() {
			if m.zones[id].Status == ZoneTriggered {
				m.setZone(id, ZoneClosed, now, set)
			}
		}
	}

	if armingChanged {
		if status := m.derive(); status != StatusUnknown {
			m.status = status
			set(TopicState, status.String())
		}
	}

	if ev.Battery != nil {
		set(TopicBattery, strconv.Itoa(min(max(*ev.Battery, 0), 100)))
	}
	setBool := func(topic string, v *bool) {
		if v != nil {
			set(topic, onOff(*v, "on", "off"))
		}
	}
	setBool(TopicACPower, ev.ACPower)
	setBool(TopicSystemBattery, ev.BatteryProblem)
	setBool(TopicTamper, ev.Tamper)
	setBool(TopicPanic, ev.Panic)
	setBool(TopicAlarmMemory, ev.AlarmMemory)
	if ev.Model != nil {
		set(TopicModel, *ev.Model)
	}
	if ev.Version != nil {
		set(TopicVersion, *ev.Version)
	}
	return changes
}

func (m *Model) setZone(id int, status ZoneStatus, now time.Time, set func(string, string)) {
	zone, ok := m.zones[id]
	if !ok || status == ZoneUnknown {
		return
	}
	if zone.Status != status {
		zone.Status = status
		zone.Changed = now
	}
	set(ZoneTopic(id), status.String())
}

func (m *Model) partitioned() bool {
	return len(m.partitions) > 0
}

// derive computes the alarm status from the arming inputs only.
func (m *Model) derive() Status {
	if !m.partitioned() {
		if m.arming == nil {
			return StatusUnknown
		}
		switch {
		case *m.arming == ArmingOff:
			return StatusDisarmed
		case m.triggered:
			return StatusTriggered
		case *m.arming == ArmingStay:
			return StatusArmedHome
		default:
			return StatusArmedAway
		}
	}

	if len(m.armed) == 0 {
		return StatusUnknown
	}
	armed := 0
	for _, p := range m.partitions {
		if m.armed[p] {
			armed++
		}
	}
	switch {
	case armed == 0:
		return StatusDisarmed
	case m.triggered:
		return StatusTriggered
	case armed == len(m.partitions):
		return StatusArmedAway
	default:
		return StatusArmedHome
	}
}

func onOff(b bool, on, off string) string {
	if b {
		return on
	}
	return off
}
