package alarm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	for payload, expected := range map[string]Command{
		"ARM_AWAY":          Arm(ScopeAway),
		"arm_home":          Arm(ScopeHome),
		"ARM-NIGHT":         Arm(ScopeNight),
		"arm vacation":      Arm(ScopeVacation),
		"ARM_CUSTOM_BYPASS": Arm(ScopeCustomBypass),
		"DISARM":            Disarm(ScopeGlobal),
		"PANIC":             Panic(PanicAudible),
		"PANIC_SILENT":      Panic(PanicSilent),
		"ARM_PART_A":        ArmPartition(PartitionA),
		"DISARM_PART_d":     DisarmPartition(PartitionD),
		"ARM_PARTITION_B":   ArmPartition(PartitionB),
		" DISARM ":          Disarm(ScopeGlobal),
	} {
		t.Run(payload, func(t *testing.T) {
			cmd, err := ParseCommand(payload)
			require.NoError(t, err)
			require.Equal(t, expected, cmd)
		})
	}

	for _, payload := range []string{"", "FOO", "ARM_PART_E", "ARM_PART_", "DISARM_PART_AB"} {
		t.Run("invalid "+payload, func(t *testing.T) {
			_, err := ParseCommand(payload)
			require.ErrorIs(t, err, ErrUnknownCommand)
		})
	}
}

func TestCommandString(t *testing.T) {
	require.Equal(t, "ARM_AWAY", Arm(ScopeAway).String())
	require.Equal(t, "DISARM", Disarm(ScopeGlobal).String())
	require.Equal(t, "DISARM_PART_C", DisarmPartition(PartitionC).String())
	require.Equal(t, "PANIC_SILENT", Panic(PanicSilent).String())
}

func TestSupports(t *testing.T) {
	poller := Capabilities{
		ArmScopes:    []Scope{ScopeGlobal, ScopeAway},
		DisarmScopes: []Scope{ScopeGlobal},
		PanicKinds:   []PanicKind{PanicAudible, PanicSilent},
	}
	require.NoError(t, poller.Supports(Arm(ScopeAway)))
	require.NoError(t, poller.Supports(Disarm(ScopeGlobal)))
	require.NoError(t, poller.Supports(Panic(PanicSilent)))

	err := poller.Supports(ArmPartition(PartitionA))
	require.ErrorIs(t, err, ErrUnsupported)
	var cerr *CommandError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, ArmPartition(PartitionA), cerr.Command)

	listener := Capabilities{
		Partitions:   []Partition{PartitionA, PartitionB},
		ArmScopes:    []Scope{ScopeAway, ScopeHome, ScopeNight, ScopeVacation, ScopePartition},
		DisarmScopes: []Scope{ScopeGlobal, ScopePartition},
		PanicKinds:   []PanicKind{PanicAudible},
	}
	require.NoError(t, listener.Supports(Arm(ScopeNight)))
	require.NoError(t, listener.Supports(ArmPartition(PartitionB)))
	require.ErrorIs(t, listener.Supports(Arm(ScopeVacation)), ErrUnsupported)
	require.ErrorIs(t, listener.Supports(ArmPartition(PartitionC)), ErrUnsupported)
	require.ErrorIs(t, listener.Supports(Panic(PanicSilent)), ErrUnsupported)
}

func TestEffect(t *testing.T) {
	t.Run("partitioned", func(t *testing.T) {
		caps := Capabilities{Partitions: AllPartitions}
		require.Equal(t, map[Partition]bool{
			PartitionA: true, PartitionB: true, PartitionC: true, PartitionD: true,
		}, caps.Effect(Arm(ScopeAway)).Partitions)
		require.Equal(t, map[Partition]bool{PartitionB: true}, caps.Effect(Arm(ScopeNight)).Partitions)
		require.Equal(t, map[Partition]bool{PartitionC: false}, caps.Effect(DisarmPartition(PartitionC)).Partitions)
		require.Nil(t, caps.Effect(DisarmPartition(PartitionC)).Triggered)
		require.Equal(t, Ptr(false), caps.Effect(Disarm(ScopeGlobal)).Triggered)
	})

	t.Run("global", func(t *testing.T) {
		caps := Capabilities{}
		require.Equal(t, Ptr(ArmingAway), caps.Effect(Arm(ScopeAway)).Arming)
		ev := caps.Effect(Disarm(ScopeGlobal))
		require.Equal(t, Ptr(ArmingOff), ev.Arming)
		require.Equal(t, Ptr(false), ev.Triggered)
	})

	t.Run("panic", func(t *testing.T) {
		require.Equal(t, Ptr(true), Capabilities{}.Effect(Panic(PanicAudible)).Panic)
	})
}
