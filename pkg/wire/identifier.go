// Package wire implements the on-the-wire framing described in spec §6:
// the "/group/scheme/type/process/thread" identifier grammar, the
// identifier+NUL+payload publication frame, and the Manager's 5-byte
// request/reply header.
package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluefin-robotics/middleware/pkg/group"
	"github.com/bluefin-robotics/middleware/pkg/scheme"
)

// Identifier is the wire key used for filtered routing (spec §3
// SubscriptionIdentifier, §6). Process and Thread are stable integers for
// the life of the emitting Portal.
type Identifier struct {
	Group   group.Group
	Scheme  scheme.Scheme
	Type    string
	Process int64
	Thread  int64
}

// String renders the identifier exactly as it appears on the wire:
// "/<group>/<scheme-id>/<type-name>/<process-id>/<thread-id>".
func (id Identifier) String() string {
	return "/" + id.Group.Name() +
		"/" + id.Scheme.Wire() +
		"/" + id.Type +
		"/" + strconv.FormatInt(id.Process, 10) +
		"/" + strconv.FormatInt(id.Thread, 10)
}

// ParseIdentifier is the inverse of Identifier.String. Spec §8 invariant 4
// requires ParseIdentifier(x.String()) == x for all fields.
func ParseIdentifier(s string) (Identifier, error) {
	if !strings.HasPrefix(s, "/") {
		return Identifier{}, fmt.Errorf("wire: identifier %q missing leading /", s)
	}
	parts := strings.Split(s[1:], "/")
	if len(parts) != 5 {
		return Identifier{}, fmt.Errorf("wire: identifier %q has %d segments, want 5", s, len(parts))
	}

	sch, err := scheme.ParseWire(parts[1])
	if err != nil {
		return Identifier{}, fmt.Errorf("wire: identifier %q: bad scheme: %w", s, err)
	}
	proc, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Identifier{}, fmt.Errorf("wire: identifier %q: bad process id: %w", s, err)
	}
	thread, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return Identifier{}, fmt.Errorf("wire: identifier %q: bad thread id: %w", s, err)
	}

	return Identifier{
		Group:   group.New(parts[0]),
		Scheme:  sch,
		Type:    parts[2],
		Process: proc,
		Thread:  thread,
	}, nil
}

// PortalPrefix returns the process-and-thread-wildcard prefix for a
// (group, scheme, type) key: "/group/scheme/type/" — the SUB-filter a
// portal subscription (as opposed to a specific sender) installs, per
// spec §4.3.
func PortalPrefix(g group.Group, s scheme.Scheme, typeName string) string {
	return "/" + g.Name() + "/" + s.Wire() + "/" + typeName + "/"
}

// CatchAllPrefix is the byte prefix that matches every frame, the filter
// that fits a regex subscription, whose group/type constraints cannot be
// expressed as a byte prefix. The Reader in pkg/interprocess installs no
// filter for a regex subscription; it offers every received frame to each
// regex subscription's Matches.
const CatchAllPrefix = "/"
