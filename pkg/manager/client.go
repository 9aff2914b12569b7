package manager

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/bluefin-robotics/middleware/pkg/wire"
	"github.com/clarketm/json"
)

// SocketDescriptor names one endpoint a Portal connects a socket to,
// modeling every transport kind spec §6 lists. Connecting a descriptor
// whose Transport is pgm/epgm is rejected upstream (SPEC_FULL.md §6); the
// type still carries the fields so a Manager could, in principle, hand one
// out.
type SocketDescriptor struct {
	Transport string `json:"transport"`
	Address   string `json:"address"`
}

// ProvidePubSubSocketsReply is the body of a successful
// ProvidePubSubSockets reply: the descriptor a Portal's PUB socket should
// connect to, and the descriptor its SUB socket should connect to.
type ProvidePubSubSocketsReply struct {
	Publish   SocketDescriptor `json:"publish"`
	Subscribe SocketDescriptor `json:"subscribe"`
}

// RequestPubSubSockets performs the Manager handshake (spec §4.6): dial
// addr, send a ProvidePubSubSockets request, and wait up to timeout for the
// reply. A timeout or a Manager-reported error both come back as a plain
// error; the caller (pkg/interprocess) is responsible for surfacing
// ConfigurationError to its own callers.
func RequestPubSubSockets(addr string, timeout time.Duration) (ProvidePubSubSocketsReply, error) {
	var zero ProvidePubSubSocketsReply

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return zero, fmt.Errorf("manager: dial %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	reqBody, err := json.Marshal(Request{Type: ProvidePubSubSockets})
	if err != nil {
		return zero, fmt.Errorf("manager: marshaling request: %w", err)
	}
	if err := wire.WriteMessage(conn, wire.EncodeManagerFrame(reqBody)); err != nil {
		return zero, fmt.Errorf("manager: request to %s: %w", addr, err)
	}

	frame, err := wire.ReadMessage(bufio.NewReader(conn))
	if err != nil {
		return zero, fmt.Errorf("manager: reply from %s: %w", addr, err)
	}
	replyBody, err := wire.DecodeManagerFrame(frame)
	if err != nil {
		return zero, fmt.Errorf("manager: malformed reply from %s: %w", addr, err)
	}

	var reply wireReply
	if err := json.Unmarshal(replyBody, &reply); err != nil {
		return zero, fmt.Errorf("manager: unparseable reply from %s: %w", addr, err)
	}
	if reply.Error != "" {
		return zero, fmt.Errorf("manager: %s", reply.Error)
	}

	var result ProvidePubSubSocketsReply
	if err := json.Unmarshal(reply.Body, &result); err != nil {
		return zero, fmt.Errorf("manager: unparseable reply body from %s: %w", addr, err)
	}
	return result, nil
}
