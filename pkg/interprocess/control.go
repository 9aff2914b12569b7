package interprocess

import (
	"github.com/bluefin-robotics/middleware/pkg/admin"
	"github.com/bluefin-robotics/middleware/pkg/interthread"
	"github.com/bluefin-robotics/middleware/pkg/subscription"
)

// ThreadID is the same logical-participant handle pkg/interthread defines:
// an application mints one ThreadID per goroutine and carries it across
// every layer (broker, portal) that needs to know which participant is
// asking. There is no separate interprocess-layer identity space.
type ThreadID = interthread.ThreadID

// NewThreadID mints a fresh, process-unique ThreadID.
var NewThreadID = interthread.NewThreadID

// controlKind discriminates the inproc control messages a Portal's public
// API sends to its Reader goroutine (the Portal-to-Reader side of spec §3
// InprocControl): subscribe, unsubscribe, snapshot and shutdown requests.
// There are no PUB_CONFIGURATION or RECEIVE messages: the Manager handshake
// runs in Start, and the Reader dispatches received frames itself. The
// Reader goroutine is the sole owner of the subscription
// table; every mutation arrives as one of these messages instead of
// locking a shared map, matching the original's single-writer control
// thread. Reader and Portal are both goroutines in the same OS process
// here, so a Go channel plays the role the original's inproc PAIR socket
// plays across OS threads — no wire framing is needed for this leg (see
// DESIGN.md).
type controlKind int

const (
	ctlSubscribeTyped controlKind = iota
	ctlUnsubscribeTyped
	ctlSubscribeRegex
	ctlUnsubscribeRegex
	ctlUnsubscribeAllForThread
	// ctlForwardSubscribe and ctlForwardUnsubscribe install and remove a
	// forwarder subscription table entry (spec §4.3 "Forwarder
	// integration", §4.7). ctlForwardUnsubscribeAllForThread implements
	// §4.7 rule 4: removing every forwarder key an outer thread owns.
	ctlForwardSubscribe
	ctlForwardUnsubscribe
	ctlForwardUnsubscribeAllForThread
	ctlSnapshot
	ctlShutdown
)

type controlMsg struct {
	kind      controlKind
	typed     subscription.Typed
	regex     subscription.Regex
	regexID   int64
	forwarder forwarderEntry
	thread    ThreadID
	err       error
	resultID  int64
	snapshot  []admin.SubscriptionInfo
	done      chan struct{}
}

func (p *Portal) sendControl(msg *controlMsg) error {
	msg.done = make(chan struct{})
	select {
	case p.control <- msg:
	case <-p.closed:
		return ErrShutdownInProgress{}
	}
	<-msg.done
	return msg.err
}
