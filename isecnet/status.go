package isecnet

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/intelbras2mqtt/alarm"
)

const (
	fullStatusSize    = 54
	partialStatusSize = 43
)

// Zone is the status of a zone as reported by the panel.
type Zone struct {
	Number     int
	Open       bool
	Violated   bool
	Bypassed   bool
	Tamper     bool
	Short      bool
	LowBattery bool
}

// Status is a decoded 0x5B (full) or 0x5A (partial) status reply.
type Status struct {
	Model       string
	Firmware    string
	Partitioned bool
	Partitions  map[alarm.Partition]bool
	Armed       bool
	Triggered   bool
	Siren       bool
	Problem     bool
	Clock       time.Time
	Zones       []Zone

	ACFailure      bool
	BatteryLow     bool
	BatteryAbsent  bool
	BatteryShort   bool
	AuxOverload    bool
	KeyboardTamper bool
	SirenWireCut   bool
	SirenShort     bool
	PhoneLineCut   bool
	CommFailure    bool
}

// layout holds the offsets that differ between full and partial replies.
type layout struct {
	zoneBytes      int
	model          int
	partitioned    int
	partitionsAB   int
	partitionsCD   int
	functioning    int
	clock          int
	power          int
	keyboardTamper int
	siren          int
	tamper         [2]int
	short          [2]int
	lowBattery     [2]int
	lowBatteryFrom int
	sirenExtra     int
}

var fullLayout = layout{
	zoneBytes:      8,
	model:          24,
	partitioned:    26,
	partitionsAB:   27,
	partitionsCD:   28,
	functioning:    29,
	clock:          30,
	power:          35,
	keyboardTamper: 41,
	siren:          42,
	tamper:         [2]int{43, 44},
	short:          [2]int{44, 45},
	lowBattery:     [2]int{46, 52},
	lowBatteryFrom: 17,
	sirenExtra:     -1,
}

var partialLayout = layout{
	zoneBytes:      6,
	model:          18,
	partitioned:    20,
	partitionsAB:   21,
	partitionsCD:   -1,
	functioning:    22,
	clock:          23,
	power:          28,
	keyboardTamper: 31,
	siren:          32,
	tamper:         [2]int{33, 35},
	short:          [2]int{35, 37},
	lowBattery:     [2]int{38, 43},
	lowBatteryFrom: 1,
	sirenExtra:     37,
}

// ParseStatus decodes a status reply. Both the 54 byte full and the 43 byte
// partial formats are accepted.
func ParseStatus(data []byte) (Status, error) {
	var l layout
	switch len(data) {
	case fullStatusSize:
		l = fullLayout
	case partialStatusSize:
		l = partialLayout
	default:
		return Status{}, fmt.Errorf("invalid status:\n%s", hex.Dump(data))
	}

	zb := l.zoneBytes
	status := Status{
		Model:       modelName(data[l.model]),
		Firmware:    fmt.Sprintf("%d.%d", data[l.model+1]>>4, data[l.model+1]&0x0f),
		Partitioned: data[l.partitioned] == 0x01,
		Partitions: map[alarm.Partition]bool{
			alarm.PartitionA: data[l.partitionsAB]&0x01 > 0,
			alarm.PartitionB: data[l.partitionsAB]&0x02 > 0,
		},
		Armed:     data[l.functioning]&0x08 > 0,
		Triggered: data[l.functioning]&0x04 > 0,
		Siren:     data[l.functioning]&0x02 > 0,
		Problem:   data[l.functioning]&0x11 > 0,
		Clock:     clock(data[l.clock : l.clock+5]),
		Zones:     make([]Zone, zb*8),

		ACFailure:      data[l.power]&0x01 > 0,
		BatteryLow:     data[l.power]&0x02 > 0,
		BatteryAbsent:  data[l.power]&0x04 > 0,
		BatteryShort:   data[l.power]&0x08 > 0,
		AuxOverload:    data[l.power]&0x10 > 0,
		KeyboardTamper: data[l.keyboardTamper]&0xf0 > 0,
		SirenWireCut:   data[l.siren]&0x01 > 0,
		SirenShort:     data[l.siren]&0x02 > 0,
		PhoneLineCut:   data[l.siren]&0x04 > 0,
		CommFailure:    data[l.siren]&0x08 > 0,
	}
	if l.partitionsCD >= 0 {
		status.Partitions[alarm.PartitionC] = data[l.partitionsCD]&0x01 > 0
		status.Partitions[alarm.PartitionD] = data[l.partitionsCD]&0x02 > 0
	}
	if l.sirenExtra >= 0 && data[l.sirenExtra]&0x04 > 0 {
		status.Siren = true
	}

	for i := range status.Zones {
		status.Zones[i].Number = i + 1
	}
	bits(data[0:zb], 1, func(n int) { status.Zones[n-1].Open = true })
	bits(data[zb:2*zb], 1, func(n int) { status.Zones[n-1].Violated = true })
	bits(data[2*zb:3*zb], 1, func(n int) { status.Zones[n-1].Bypassed = true })
	bits(data[l.tamper[0]:l.tamper[1]], 1, func(n int) { status.Zones[n-1].Tamper = true })
	bits(data[l.short[0]:l.short[1]], 1, func(n int) { status.Zones[n-1].Short = true })
	bits(data[l.lowBattery[0]:l.lowBattery[1]], l.lowBatteryFrom, func(n int) {
		if n <= len(status.Zones) {
			status.Zones[n-1].LowBattery = true
		}
	})
	return status, nil
}

// Event translates the status into a state model event.
func (s Status) Event(tracked []alarm.Partition) alarm.Event {
	ev := alarm.Event{
		Partitions:     map[alarm.Partition]bool{},
		Triggered:      alarm.Ptr(s.Siren || s.violated()),
		Zones:          make(map[int]alarm.ZoneStatus, len(s.Zones)),
		Battery:        alarm.Ptr(s.batteryLevel()),
		ACPower:        alarm.Ptr(!s.ACFailure),
		BatteryProblem: alarm.Ptr(s.BatteryLow || s.BatteryAbsent || s.BatteryShort),
		Tamper:         alarm.Ptr(s.KeyboardTamper || s.zoneTamper()),
		AlarmMemory:    alarm.Ptr(s.Triggered),
		Model:          alarm.Ptr(s.Model),
		Version:        alarm.Ptr(s.Firmware),
	}
	for _, p := range tracked {
		if !s.Partitioned {
			ev.Partitions[p] = s.Armed
			continue
		}
		if armed, ok := s.Partitions[p]; ok {
			ev.Partitions[p] = armed
		}
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
	return ev
}

func (s Status) batteryLevel() int {
	switch {
	case s.BatteryAbsent, s.BatteryShort:
		return 0
	case s.BatteryLow:
		return 25
	default:
		return 100
	}
}

func (s Status) violated() bool {
	for _, z := range s.Zones {
		if z.Violated {
			return true
		}
	}
	return false
}

func (s Status) zoneTamper() bool {
	for _, z := range s.Zones {
		if z.Tamper {
			return true
		}
	}
	return false
}

func bits(data []byte, first int, fn func(n int)) {
	for i, octet := range data {
		for j := 0; j < 8; j++ {
			if octet&(1<<j) > 0 {
				fn(first + i*8 + j)
			}
		}
	}
}

// the panel clock is plain binary, not BCD.
func clock(b []byte) time.Time {
	hour, minute, day, month := int(b[0]), int(b[1]), int(b[2]), int(b[3])
	if hour > 23 || minute > 59 || day < 1 || day > 31 || month < 1 || month > 12 {
		return time.Time{}
	}
	return time.Date(2000+int(b[4]), time.Month(month), day, hour, minute, 0, 0, time.Local)
}

func modelName(b byte) string {
	switch b {
	case 0x41:
		return "AMT-4010"
	case 0x1e:
		return "AMT-2018"
	default:
		return fmt.Sprintf("Unknown (0x%02x)", b)
	}
}
