package interprocess

import (
	"bufio"
	"net"

	"github.com/bluefin-robotics/middleware/pkg/admin"
	"github.com/bluefin-robotics/middleware/pkg/group"
	"github.com/bluefin-robotics/middleware/pkg/scheme"
	"github.com/bluefin-robotics/middleware/pkg/subscription"
	"github.com/bluefin-robotics/middleware/pkg/wire"
)

// regexEntry pairs a regex subscription with the handle Unsubscribe uses
// to remove exactly that registration.
type regexEntry struct {
	id  int64
	rec subscription.Regex
}

// forwarderEntry is one outer-layer transporter's standing interest in a
// (group, scheme, type) key, installed via SerializationSubscription on
// the well-known forward_group (spec §4.3 "Forwarder integration", §4.7).
// Unlike subscription.Typed it carries no Go type: the forwarder receives
// raw payload bytes and parses them itself.
type forwarderEntry struct {
	threadID ThreadID
	group    group.Group
	scheme   scheme.Scheme
	typeName string
	handler  func(payload []byte)
}

func (e forwarderEntry) key() string {
	return wire.PortalPrefix(e.group, e.scheme, e.typeName)
}

// readerState is owned exclusively by the Reader goroutine; every read and
// write to it happens on that one goroutine, so it needs no lock (spec §4.4
// "Reader side" state machine plus SPEC_FULL.md's single-writer control
// channel note).
type readerState struct {
	// typedSubs and forwarderSubs map a portal-prefix key
	// ("/group/scheme/type/") to the threads subscribed at that key, one
	// table for local typed subscribers and one for forwarder
	// subscriptions arriving via forward_group. prefixRefs is shared
	// across *both* tables: the SUB-filter refcount spec §8 invariant 6
	// and §4.3 "subscribe<T>" both require that a key's filter is live
	// iff either table still has an entry for it (removing the last one
	// from either table is the point at which a real SUB socket would
	// issue ZMQ_UNSUBSCRIBE; here it is the point at which the Reader
	// stops matching that prefix at all).
	typedSubs     map[string]map[int64]subscription.Typed
	forwarderSubs map[string]map[int64]forwarderEntry
	prefixRefs    map[string]int

	regexSubs   map[int64]regexEntry
	nextRegexID int64
}

func newReaderState() *readerState {
	return &readerState{
		typedSubs:     make(map[string]map[int64]subscription.Typed),
		forwarderSubs: make(map[string]map[int64]forwarderEntry),
		prefixRefs:    make(map[string]int),
		regexSubs:     make(map[int64]regexEntry),
	}
}

// releaseKeyIfUnreferenced deletes key from both subscription tables once
// prefixRefs has dropped to zero or below, releasing the shared SUB-filter
// (spec §4.3, §4.7 rule 3).
func (s *readerState) releaseKeyIfUnreferenced(key string) {
	if s.prefixRefs[key] > 0 {
		return
	}
	delete(s.prefixRefs, key)
	delete(s.typedSubs, key)
	delete(s.forwarderSubs, key)
}

// runReader is the Reader goroutine's body: it owns the readerState and the SUB
// connection, alternating between applying control messages and
// dispatching received frames, until a shutdown message arrives.
func (p *Portal) runReader() {
	state := newReaderState()
	frameCh := make(chan []byte, 256)
	readErrCh := make(chan error, 1)

	go func() {
		r := bufio.NewReader(p.subConn)
		for {
			frame, err := wire.ReadMessage(r)
			if err != nil {
				readErrCh <- err
				return
			}
			select {
			case frameCh <- frame:
			case <-p.closed:
				return
			}
		}
	}()

	for {
		select {
		case msg := <-p.control:
			p.applyControl(state, msg)
			close(msg.done)
			if msg.kind == ctlShutdown {
				return
			}
		case frame := <-frameCh:
			p.dispatchFrame(state, frame)
		case err := <-readErrCh:
			if err != net.ErrClosed {
				p.log.WithError(err).Warn("interprocess reader: sub connection closed")
			}
			return
		}
	}
}

func (p *Portal) applyControl(state *readerState, msg *controlMsg) {
	switch msg.kind {
	case ctlSubscribeTyped:
		key := msg.typed.Key()
		if state.typedSubs[key] == nil {
			state.typedSubs[key] = make(map[int64]subscription.Typed)
		}
		if _, exists := state.typedSubs[key][msg.typed.ThreadID]; !exists {
			state.typedSubs[key][msg.typed.ThreadID] = msg.typed
			state.prefixRefs[key]++
		}

	case ctlUnsubscribeTyped:
		key := msg.typed.Key()
		if m, ok := state.typedSubs[key]; ok {
			if _, exists := m[msg.typed.ThreadID]; exists {
				delete(m, msg.typed.ThreadID)
				state.prefixRefs[key]--
				state.releaseKeyIfUnreferenced(key)
			}
		}

	case ctlForwardSubscribe:
		key := msg.forwarder.key()
		if state.forwarderSubs[key] == nil {
			state.forwarderSubs[key] = make(map[int64]forwarderEntry)
		}
		if _, exists := state.forwarderSubs[key][int64(msg.forwarder.threadID)]; !exists {
			state.forwarderSubs[key][int64(msg.forwarder.threadID)] = msg.forwarder
			state.prefixRefs[key]++
		}

	case ctlForwardUnsubscribe:
		key := msg.forwarder.key()
		if m, ok := state.forwarderSubs[key]; ok {
			if _, exists := m[int64(msg.forwarder.threadID)]; exists {
				delete(m, int64(msg.forwarder.threadID))
				state.prefixRefs[key]--
				state.releaseKeyIfUnreferenced(key)
			}
		}

	case ctlForwardUnsubscribeAllForThread:
		for key, m := range state.forwarderSubs {
			if _, ok := m[int64(msg.thread)]; ok {
				delete(m, int64(msg.thread))
				state.prefixRefs[key]--
				state.releaseKeyIfUnreferenced(key)
			}
		}

	case ctlSubscribeRegex:
		state.nextRegexID++
		id := state.nextRegexID
		state.regexSubs[id] = regexEntry{id: id, rec: msg.regex}
		msg.resultID = id

	case ctlUnsubscribeRegex:
		delete(state.regexSubs, msg.regexID)

	case ctlUnsubscribeAllForThread:
		for key, m := range state.typedSubs {
			if _, ok := m[int64(msg.thread)]; ok {
				delete(m, int64(msg.thread))
				state.prefixRefs[key]--
				state.releaseKeyIfUnreferenced(key)
			}
		}
		for id, e := range state.regexSubs {
			if e.rec.ThreadID == int64(msg.thread) {
				delete(state.regexSubs, id)
			}
		}

	case ctlSnapshot:
		var out []admin.SubscriptionInfo
		for key, byThread := range state.typedSubs {
			for thread, rec := range byThread {
				out = append(out, admin.SubscriptionInfo{
					Group:    rec.Group.Name(),
					Scheme:   rec.Scheme.String(),
					Type:     rec.TypeName,
					ThreadID: thread,
					Refcount: state.prefixRefs[key],
				})
			}
		}
		for key, byThread := range state.forwarderSubs {
			for thread, rec := range byThread {
				out = append(out, admin.SubscriptionInfo{
					Group:    rec.group.Name(),
					Scheme:   rec.scheme.String(),
					Type:     rec.typeName,
					ThreadID: thread,
					Refcount: state.prefixRefs[key],
				})
			}
		}
		msg.snapshot = out

	case ctlShutdown:
		p.subConn.Close()
		p.pubConn.Close()
	}
}

func (p *Portal) dispatchFrame(state *readerState, frame []byte) {
	id, payload, err := wire.DecodeFrame(frame)
	if err != nil {
		p.log.WithError(err).Warn("interprocess reader: malformed frame")
		return
	}

	// Cyclic-forwarding avoidance (spec §9): a Portal drops frames it
	// published itself (its processID combines the OS process id with a
	// per-Portal counter) unless echo is configured. Without this,
	// a Portal that both publishes and subscribes to the same key over
	// the network would see its own publications come back through the
	// Router, violating §8 invariant 2 at this layer.
	if id.Process == p.processID && !p.cfg.Echo {
		return
	}

	key := wire.PortalPrefix(id.Group, id.Scheme, id.Type)
	if byThread, ok := state.typedSubs[key]; ok {
		for _, rec := range byThread {
			rec.Dispatch(payload)
		}
	}
	if byThread, ok := state.forwarderSubs[key]; ok {
		for _, rec := range byThread {
			rec.handler(payload)
		}
	}
	for _, e := range state.regexSubs {
		if e.rec.Matches(id) {
			e.rec.Dispatch(id, payload)
		}
	}
}
