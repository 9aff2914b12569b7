package interprocess

import (
	"github.com/bluefin-robotics/middleware/pkg/group"
	"github.com/bluefin-robotics/middleware/pkg/interthread"
	"github.com/bluefin-robotics/middleware/pkg/scheme"
	"github.com/bluefin-robotics/middleware/pkg/wire"
)

// ForwardGroup is the well-known inner group an outer-layer transporter
// (the intervehicle layer, out of scope here) uses to relay subscriptions
// and publications through this layer (spec §4.3 "Forwarder integration",
// §4.7). A Portal's inner broker subscription to this group is installed
// once, at construction.
var ForwardGroup = group.New("forward_group")

// SerializerTransporterData is a forwarded publication: an outer
// transporter hands the Portal an already-serialized value to relay to the
// Router, addressed by (scheme, type, group) rather than a Go type (spec
// §3 ForwardedPublication, §4.3).
type SerializerTransporterData struct {
	Scheme   scheme.Scheme
	TypeName string
	Group    group.Group
	Bytes    []byte
}

// SerializationSubscription is a forwarded subscribe or unsubscribe
// request (spec §4.3, §4.7): an outer transporter asks the Portal to
// install or remove a SUB-filter on its behalf, and to invoke Handler with
// the raw payload bytes of every subsequently received matching frame.
type SerializationSubscription struct {
	Subscribe bool
	Scheme    scheme.Scheme
	TypeName  string
	Group     group.Group
	Handler   func(payload []byte)
	ThreadID  ThreadID
}

// SerializationUnsubscribeAll asks the Portal to remove every forwarder
// subscription ThreadID owns (spec §4.7 rule 4).
type SerializationUnsubscribeAll struct {
	ThreadID ThreadID
}

// installForwarder subscribes the Portal's inner broker to forward_group
// on behalf of any outer-layer transporter, so SerializerTransporterData
// publications become outgoing PUB frames and SerializationSubscription /
// SerializationUnsubscribeAll records become forwarder subscription table
// entries (spec §4.3). It is installed once, at construction, independent
// of the Portal's network lifecycle — only actually forwarding frames
// requires the Portal to be Running.
func (p *Portal) installForwarder() {
	interthread.Subscribe[SerializerTransporterData](p.broker, p.forwarderThread, ForwardGroup, p.handleForwardedPublication)
	interthread.Subscribe[SerializationSubscription](p.broker, p.forwarderThread, ForwardGroup, p.handleForwardedSubscription)
	interthread.Subscribe[SerializationUnsubscribeAll](p.broker, p.forwarderThread, ForwardGroup, p.handleForwardedUnsubscribeAll)
}

func (p *Portal) handleForwardedPublication(data SerializerTransporterData) {
	if p.State() != Running {
		return
	}
	id := wire.Identifier{
		Group:   data.Group,
		Scheme:  data.Scheme,
		Type:    data.TypeName,
		Process: p.processID,
		Thread:  int64(p.forwarderThread),
	}
	frame := wire.EncodeFrame(id, data.Bytes)

	p.pubMu.Lock()
	err := wire.WriteMessage(p.pubConn, frame)
	p.pubMu.Unlock()
	if err != nil {
		p.log.WithError(err).Warn("interprocess: forwarded publication failed to send")
	}
}

func (p *Portal) handleForwardedSubscription(req SerializationSubscription) {
	if p.State() != Running {
		return
	}
	rec := forwarderEntry{
		threadID: req.ThreadID,
		group:    req.Group,
		scheme:   req.Scheme,
		typeName: req.TypeName,
		handler:  req.Handler,
	}
	kind := ctlForwardSubscribe
	if !req.Subscribe {
		kind = ctlForwardUnsubscribe
	}
	if err := p.sendControl(&controlMsg{kind: kind, forwarder: rec}); err != nil {
		p.log.WithError(err).Warn("interprocess: forwarded subscription change dropped")
	}
}

func (p *Portal) handleForwardedUnsubscribeAll(req SerializationUnsubscribeAll) {
	if p.State() != Running {
		return
	}
	if err := p.sendControl(&controlMsg{kind: ctlForwardUnsubscribeAllForThread, thread: req.ThreadID}); err != nil {
		p.log.WithError(err).Warn("interprocess: forwarded unsubscribe_all dropped")
	}
}
