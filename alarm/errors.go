package alarm

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported    = errors.New("unsupported operation")
	ErrAckTimeout     = errors.New("timed out waiting for acknowledgement")
	ErrRejected       = errors.New("rejected by the panel")
	ErrNotConnected   = errors.New("panel is not connected")
	ErrShutdown       = errors.New("bridge is shutting down")
	ErrUnknownCommand = errors.New("unknown command")
)

// ConfigError is a fatal configuration problem detected at startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FrameError reports a frame that failed structural or checksum validation.
// Discard is the number of buffered bytes dropped to resynchronize.
type FrameError struct {
	Reason  string
	Discard int
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("invalid frame: %s (dropped %d bytes)", e.Reason, e.Discard)
}

// RejectedError is a negative acknowledgement sent by the panel.
type RejectedError struct {
	Code   byte
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected by the panel: %s (0x%02x)", e.Reason, e.Code)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// CommandError is the typed failure returned to whoever issued a command.
type CommandError struct {
	Command Command
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
