package isecnet

import (
	"encoding/hex"
	"fmt"

	"github.com/caarlos0/intelbras2mqtt/alarm"
)

type ResponseKind uint8

const (
	ResponseAck ResponseKind = iota + 1
	ResponseNack
	ResponseData
)

// Response is the panel answer to an ISECMobile request.
type Response struct {
	Kind ResponseKind
	Code byte
	Data []byte
}

var nackReasons = map[byte]string{
	0xe0: "invalid packet",
	0xe1: "wrong password",
	0xe2: "invalid command",
	0xe3: "panel is not partitioned",
	0xe4: "open zones",
	0xe5: "discontinued command",
	0xe6: "user has no bypass permission",
	0xe7: "user has no deactivation permission",
	0xe8: "bypass not allowed with the panel armed",
	0xea: "partition has no zones",
}

// ParseResponse interprets a frame received after a request.
func ParseResponse(f Frame) (Response, error) {
	if f.Command == cmdAck && len(f.Content) == 0 {
		return Response{Kind: ResponseAck, Code: cmdAck}, nil
	}
	if f.Command != cmdMobile || len(f.Content) == 0 {
		return Response{}, fmt.Errorf("unexpected response:\n%s", hex.Dump(f.Bytes()))
	}

	content := f.Content
	if len(content) >= partialStatusSize {
		if content[0] == cmdAck && (len(content) == fullStatusSize+1 || len(content) == partialStatusSize+1) {
			content = content[1:]
		}
		return Response{Kind: ResponseData, Data: content}, nil
	}

	code := content[0]
	switch {
	case code == cmdAck:
		return Response{Kind: ResponseAck, Code: code}, nil
	case code >= 0xe0 && code <= 0xea:
		return Response{Kind: ResponseNack, Code: code}, nil
	}
	return Response{}, fmt.Errorf("unexpected response:\n%s", hex.Dump(f.Bytes()))
}

// Err returns the rejection carried by a negative acknowledgement.
func (r Response) Err() error {
	if r.Kind != ResponseNack {
		return nil
	}
	reason, ok := nackReasons[r.Code]
	if !ok {
		reason = "unknown error"
	}
	return &alarm.RejectedError{Code: r.Code, Reason: reason}
}
