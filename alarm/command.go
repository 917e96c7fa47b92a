package alarm

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

type Action uint8

const (
	ActionArm Action = iota + 1
	ActionDisarm
	ActionPanic
	ActionSirenOff
)

// Scope selects what an arm or disarm command applies to.
type Scope uint8

const (
	ScopeGlobal Scope = iota
	ScopeAway
	ScopeHome
	ScopeNight
	ScopeVacation
	ScopeCustomBypass
	ScopePartition
)

type PanicKind uint8

const (
	PanicAudible PanicKind = iota
	PanicSilent
)

// Command is an abstract panel command.
type Command struct {
	Action    Action
	Scope     Scope
	Partition Partition
	Panic     PanicKind
}

func Arm(scope Scope) Command    { return Command{Action: ActionArm, Scope: scope} }
func Disarm(scope Scope) Command { return Command{Action: ActionDisarm, Scope: scope} }

func ArmPartition(p Partition) Command {
	return Command{Action: ActionArm, Scope: ScopePartition, Partition: p}
}

func DisarmPartition(p Partition) Command {
	return Command{Action: ActionDisarm, Scope: ScopePartition, Partition: p}
}

func Panic(kind PanicKind) Command { return Command{Action: ActionPanic, Panic: kind} }

func (c Command) String() string {
	switch c.Action {
	case ActionArm, ActionDisarm:
		verb := "ARM"
		if c.Action == ActionDisarm {
			verb = "DISARM"
		}
		switch c.Scope {
		case ScopeAway:
			return verb + "_AWAY"
		case ScopeHome:
			return verb + "_HOME"
		case ScopeNight:
			return verb + "_NIGHT"
		case ScopeVacation:
			return verb + "_VACATION"
		case ScopeCustomBypass:
			return verb + "_CUSTOM_BYPASS"
		case ScopePartition:
			return verb + "_PART_" + c.Partition.String()
		default:
			return verb
		}
	case ActionPanic:
		if c.Panic == PanicSilent {
			return "PANIC_SILENT"
		}
		return "PANIC"
	case ActionSirenOff:
		return "SIREN_OFF"
	default:
		return "UNKNOWN"
	}
}

var commandAliases = map[string]string{
	"ARM_PARTITION_A":    "ARM_PART_A",
	"ARM_PARTITION_B":    "ARM_PART_B",
	"ARM_PARTITION_C":    "ARM_PART_C",
	"ARM_PARTITION_D":    "ARM_PART_D",
	"DISARM_PARTITION_A": "DISARM_PART_A",
	"DISARM_PARTITION_B": "DISARM_PART_B",
	"DISARM_PARTITION_C": "DISARM_PART_C",
	"DISARM_PARTITION_D": "DISARM_PART_D",
	"PANIC_AUDIBLE":      "PANIC",
}

// ParseCommand parses a command payload received from the messaging bus.
func ParseCommand(payload string) (Command, error) {
	name := strings.ToUpper(strings.TrimSpace(payload))
	name = strings.NewReplacer("-", "_", " ", "_").Replace(name)
	if alias, ok := commandAliases[name]; ok {
		name = alias
	}

	switch name {
	case "ARM_AWAY":
		return Arm(ScopeAway), nil
	case "ARM_HOME":
		return Arm(ScopeHome), nil
	case "ARM_NIGHT":
		return Arm(ScopeNight), nil
	case "ARM_VACATION":
		return Arm(ScopeVacation), nil
	case "ARM_CUSTOM_BYPASS":
		return Arm(ScopeCustomBypass), nil
	case "DISARM":
		return Disarm(ScopeGlobal), nil
	case "PANIC":
		return Panic(PanicAudible), nil
	case "PANIC_SILENT":
		return Panic(PanicSilent), nil
	}

	for prefix, build := range map[string]func(Partition) Command{
		"ARM_PART_":    ArmPartition,
		"DISARM_PART_": DisarmPartition,
	} {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			p, err := ParsePartition(rest)
			if err != nil {
				break
			}
			return build(p), nil
		}
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, payload)
}

// Targets returns the partitions an arm or disarm command applies to on a
// partitioned panel tracking the given partitions.
func (c Command) Targets(tracked []Partition) []Partition {
	var target Partition
	switch c.Scope {
	case ScopeGlobal, ScopeAway:
		return tracked
	case ScopeHome:
		target = PartitionA
	case ScopeNight:
		target = PartitionB
	case ScopeVacation:
		target = PartitionC
	case ScopeCustomBypass:
		target = PartitionD
	case ScopePartition:
		target = c.Partition
	}
	if slices.Contains(tracked, target) {
		return []Partition{target}
	}
	return nil
}

// Capabilities describes what a protocol adapter can do.
type Capabilities struct {
	// Partitions tracked by the adapter. Empty means the panel exposes a
	// single global armed flag.
	Partitions   []Partition
	ArmScopes    []Scope
	DisarmScopes []Scope
	PanicKinds   []PanicKind
	SirenOff     bool
}

// Partitioned reports whether the panel state is kept per partition.
func (c Capabilities) Partitioned() bool {
	return len(c.Partitions) > 0
}

// Supports checks cmd against the capability set.
func (c Capabilities) Supports(cmd Command) error {
	ok := false
	switch cmd.Action {
	case ActionArm, ActionDisarm:
		scopes := c.ArmScopes
		if cmd.Action == ActionDisarm {
			scopes = c.DisarmScopes
		}
		ok = slices.Contains(scopes, cmd.Scope)
		if ok && c.Partitioned() {
			ok = len(cmd.Targets(c.Partitions)) > 0
		}
	case ActionPanic:
		ok = slices.Contains(c.PanicKinds, cmd.Panic)
	case ActionSirenOff:
		ok = c.SirenOff
	}
	if !ok {
		return &CommandError{Command: cmd, Err: ErrUnsupported}
	}
	return nil
}

// Effect returns the state change implied by an acknowledged command.
func (c Capabilities) Effect(cmd Command) Event {
	var ev Event
	switch cmd.Action {
	case ActionArm, ActionDisarm:
		armed := cmd.Action == ActionArm
		if !c.Partitioned() {
			arming := ArmingOff
			if armed {
				arming = ArmingAway
				if cmd.Scope == ScopeHome {
					arming = ArmingStay
				}
			}
			ev.Arming = &arming
			if !armed {
				ev.Triggered = Ptr(false)
			}
			return ev
		}
		ev.Partitions = map[Partition]bool{}
		for _, p := range cmd.Targets(c.Partitions) {
			ev.Partitions[p] = armed
		}
		if !armed && (cmd.Scope == ScopeGlobal || cmd.Scope == ScopeAway) {
			ev.Triggered = Ptr(false)
		}
	case ActionPanic:
		ev.Panic = Ptr(true)
	}
	return ev
}
