package isecnet

import "fmt"

// ConnInfo is the identification a panel sends right after connecting.
type ConnInfo struct {
	Channel string
	Account string
	MAC     string
}

// ParseConnInfo decodes the content of a 0x94 frame.
func ParseConnInfo(content []byte) (ConnInfo, error) {
	if len(content) != 6 {
		return ConnInfo{}, fmt.Errorf("invalid connection info: % x", content)
	}
	channel := "ethernet"
	switch content[0] {
	case 'G':
		channel = "gprs 1"
	case 'H':
		channel = "gprs 2"
	}
	return ConnInfo{
		Channel: channel,
		Account: fmt.Sprintf("%02X%02X", content[1], content[2]),
		MAC:     fmt.Sprintf("%02X:%02X:%02X", content[3], content[4], content[5]),
	}, nil
}
