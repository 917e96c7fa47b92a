package isecnet

import (
	"fmt"

	"github.com/caarlos0/intelbras2mqtt/alarm"
)

// ISECMobile commands carried inside 0xE9 frames.
const (
	mobileActivate      = 0x41
	mobileSirenOn       = 0x43
	mobileDeactivate    = 0x44
	mobileStatusPartial = 0x5a
	mobileStatusFull    = 0x5b
	mobileSirenOff      = 0x63
	mobileDelimiter     = 0x21
)

// EncodeRequest builds an ISECMobile request frame:
// '!' password command content '!'.
func EncodeRequest(pwd string, cmd byte, content []byte) ([]byte, error) {
	if err := alarm.CheckPassword(pwd); err != nil {
		return nil, err
	}
	payload := make([]byte, 0, len(pwd)+len(content)+3)
	payload = append(payload, mobileDelimiter)
	payload = append(payload, pwd...)
	payload = append(payload, cmd)
	payload = append(payload, content...)
	payload = append(payload, mobileDelimiter)
	return Encode(cmdMobile, payload), nil
}

// EncodeCommand translates cmd into a request frame. Arm and disarm target
// the whole panel for the away and global scopes, or a single partition.
func EncodeCommand(pwd string, cmd alarm.Command) ([]byte, error) {
	switch cmd.Action {
	case alarm.ActionArm, alarm.ActionDisarm:
		code := byte(mobileActivate)
		if cmd.Action == alarm.ActionDisarm {
			code = mobileDeactivate
		}
		var content []byte
		if cmd.Scope != alarm.ScopeGlobal && cmd.Scope != alarm.ScopeAway {
			targets := cmd.Targets(alarm.AllPartitions)
			if len(targets) != 1 {
				return nil, fmt.Errorf("%s: %w", cmd, alarm.ErrUnsupported)
			}
			content = []byte{byte(targets[0])}
		}
		return EncodeRequest(pwd, code, content)
	case alarm.ActionPanic:
		if cmd.Panic != alarm.PanicAudible {
			return nil, fmt.Errorf("%s: %w", cmd, alarm.ErrUnsupported)
		}
		return EncodeRequest(pwd, mobileSirenOn, nil)
	case alarm.ActionSirenOff:
		return EncodeRequest(pwd, mobileSirenOff, nil)
	default:
		return nil, fmt.Errorf("%s: %w", cmd, alarm.ErrUnsupported)
	}
}
