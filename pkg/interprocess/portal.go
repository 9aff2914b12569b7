// Package interprocess implements the Interprocess Portal and its Reader
// (spec §4.3, §4.4): the per-process endpoint that publishes to, and
// receives from, the Router over PUB and SUB connections, handshaking with
// the Manager first to learn where the Router lives.
package interprocess

import (
	"context"
	"fmt"
	"net"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluefin-robotics/middleware/pkg/admin"
	"github.com/bluefin-robotics/middleware/pkg/config"
	"github.com/bluefin-robotics/middleware/pkg/group"
	"github.com/bluefin-robotics/middleware/pkg/interthread"
	"github.com/bluefin-robotics/middleware/pkg/manager"
	"github.com/bluefin-robotics/middleware/pkg/scheme"
	"github.com/bluefin-robotics/middleware/pkg/serialize"
	"github.com/bluefin-robotics/middleware/pkg/subscription"
	"github.com/bluefin-robotics/middleware/pkg/wire"
	logging "github.com/sirupsen/logrus"
)

// State is the Portal's lifecycle state (spec §4.4: "Unconfigured ->
// AwaitManagerReply -> Running -> Shutdown").
type State int

const (
	Unconfigured State = iota
	AwaitManagerReply
	Running
	Shutdown
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case AwaitManagerReply:
		return "await-manager-reply"
	case Running:
		return "running"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

var processCounter int64

// Portal is a process's gateway to the interprocess publish/subscribe
// layer. The zero value is not usable; construct with New.
type Portal struct {
	cfg       config.Portal
	reg       *serialize.Registry
	processID int64
	log       *logging.Entry

	// broker is the inner transporter construction binds (spec §4.3:
	// "Construction binds an inner transporter (usually an Interthread
	// Broker instance)"). Publish dual-delivers to it so in-process
	// subscribers receive the shared handle directly, and it is also how
	// an outer-layer forwarder reaches this Portal, via ForwardGroup.
	broker          *interthread.Broker
	forwarderThread ThreadID

	stateMu sync.RWMutex
	state   State

	pubConn net.Conn
	subConn net.Conn
	pubMu   sync.Mutex

	control chan *controlMsg
	closed  chan struct{}
	once    sync.Once
}

// New returns an unconfigured Portal. reg supplies the static codecs
// Publish/Subscribe use; it must not be nil if any typed subscription or
// publish will be made. broker is the inner transporter Publish
// dual-delivers to and the forwarder integration (spec §4.3, §4.7)
// subscribes against; pass nil to have the Portal construct its own,
// private Broker over reg.
func New(cfg config.Portal, reg *serialize.Registry, broker *interthread.Broker) *Portal {
	if broker == nil {
		broker = interthread.NewBroker(reg)
	}
	p := &Portal{
		cfg:             cfg,
		reg:             reg,
		broker:          broker,
		forwarderThread: interthread.NewThreadID(),
		processID:       int64(os.Getpid())<<32 | atomic.AddInt64(&processCounter, 1),
		log:             logging.WithField("component", "interprocess-portal"),
		state:           Unconfigured,
		control:         make(chan *controlMsg),
		closed:          make(chan struct{}),
	}
	p.installForwarder()
	return p
}

func (p *Portal) setState(s State) {
	p.stateMu.Lock()
	p.state = s
	p.stateMu.Unlock()
}

// State returns the Portal's current lifecycle state.
func (p *Portal) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// Start performs the Manager handshake and, on success, connects the PUB
// and SUB sockets and starts the Reader goroutine. It returns
// *ConfigurationError if the handshake fails or names an unsupported
// transport.
func (p *Portal) Start(ctx context.Context) error {
	p.setState(AwaitManagerReply)

	timeout := time.Duration(p.cfg.ManagerTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	reply, err := manager.RequestPubSubSockets(p.cfg.ManagerAddr, timeout)
	if err != nil {
		p.setState(Unconfigured)
		return &ConfigurationError{Reason: err.Error()}
	}

	if reply.Publish.Transport == "pgm" || reply.Publish.Transport == "epgm" ||
		reply.Subscribe.Transport == "pgm" || reply.Subscribe.Transport == "epgm" {
		p.setState(Unconfigured)
		return &ConfigurationError{Reason: "pgm/epgm not supported by this build"}
	}

	pubConn, err := net.DialTimeout(dialNetwork(reply.Publish.Transport), reply.Publish.Address, timeout)
	if err != nil {
		p.setState(Unconfigured)
		return &ConfigurationError{Reason: fmt.Sprintf("connecting publish socket: %v", err)}
	}
	subConn, err := net.DialTimeout(dialNetwork(reply.Subscribe.Transport), reply.Subscribe.Address, timeout)
	if err != nil {
		pubConn.Close()
		p.setState(Unconfigured)
		return &ConfigurationError{Reason: fmt.Sprintf("connecting subscribe socket: %v", err)}
	}

	p.pubConn = pubConn
	p.subConn = subConn
	p.setState(Running)

	go p.runReader()

	// The forwarder's broker subscriptions (installForwarder) are only
	// delivered through Poll on forwarderThread; drain them until Stop.
	go func() {
		for {
			select {
			case <-p.closed:
				return
			default:
			}
			interthread.Poll(p.broker, p.forwarderThread, 100*time.Millisecond)
		}
	}()

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

func dialNetwork(transport string) string {
	switch transport {
	case "ipc":
		return "unix"
	default:
		return "tcp"
	}
}

// Stop transitions the Portal to Shutdown, closing its sockets and tearing
// down the Reader goroutine. Stop is idempotent.
func (p *Portal) Stop() {
	p.once.Do(func() {
		if p.State() == Running {
			msg := &controlMsg{kind: ctlShutdown, done: make(chan struct{})}
			p.control <- msg
			<-msg.done
		}
		close(p.closed)
		p.setState(Shutdown)
	})
}

func schemeOf[T any](p *Portal) scheme.Scheme {
	if p.reg != nil {
		if s, ok := serialize.DefaultScheme[T](p.reg); ok {
			return s
		}
	}
	return scheme.NativeObject
}

// Publish serializes value under s and sends it to the Router for delivery
// to every Portal with a matching subscription. In parallel, it delivers
// value directly through the Portal's inner broker, so in-process
// subscribers receive the shared handle rather than a re-parsed copy of
// the wire bytes (spec §4.3). Publish is safe to call from any goroutine;
// writes to the PUB connection are serialized.
func Publish[T any](p *Portal, thread ThreadID, g group.Group, typeName string, value T) error {
	if p.State() != Running {
		return ErrShutdownInProgress{}
	}
	s := schemeOf[T](p)
	payload, err := serialize.Serialize[T](p.reg, s, value)
	if err != nil {
		return err
	}
	id := wire.Identifier{Group: g, Scheme: s, Type: typeName, Process: p.processID, Thread: int64(thread)}
	frame := wire.EncodeFrame(id, payload)

	p.pubMu.Lock()
	err = wire.WriteMessage(p.pubConn, frame)
	p.pubMu.Unlock()
	if err != nil {
		return err
	}

	interthread.Publish[T](p.broker, interthread.ThreadID(thread), g, value, interthread.PublishConfig{Echo: p.cfg.Echo})
	return nil
}

// Subscribe installs a typed subscription for thread on (scheme(T), type,
// group): handler is invoked on the Reader goroutine every time a matching
// frame arrives, until Unsubscribe or UnsubscribeAll removes it.
func Subscribe[T any](p *Portal, thread ThreadID, g group.Group, typeName string, handler func(T)) error {
	if p.State() != Running {
		return ErrShutdownInProgress{}
	}
	s := schemeOf[T](p)
	reg := p.reg
	rec := subscription.Typed{
		Group:    g,
		Scheme:   s,
		TypeName: typeName,
		ThreadID: int64(thread),
		Action:   subscription.Subscribe,
		Dispatch: func(payload []byte) {
			v, err := serialize.Parse[T](reg, s, payload)
			if err != nil {
				p.log.WithError(err).Warn("interprocess: dropping unparseable message")
				return
			}
			handler(v)
		},
	}
	return p.sendControl(&controlMsg{kind: ctlSubscribeTyped, typed: rec})
}

// Unsubscribe removes thread's typed subscription on (scheme(T), type,
// group). It is a no-op if no such subscription exists.
func Unsubscribe[T any](p *Portal, thread ThreadID, g group.Group, typeName string) error {
	s := schemeOf[T](p)
	rec := subscription.Typed{Group: g, Scheme: s, TypeName: typeName, ThreadID: int64(thread)}
	return p.sendControl(&controlMsg{kind: ctlUnsubscribeTyped, typed: rec})
}

// RegexSubscription identifies an installed regex subscription so it can
// later be removed with UnsubscribeRegex.
type RegexSubscription int64

// SubscribeRegex installs a subscription matching any frame whose scheme is
// in schemes (nil or empty matches every scheme), whose type name matches
// typeRegex (nil matches every type), and whose group name matches
// groupRegex (nil matches every group).
func SubscribeRegex(p *Portal, thread ThreadID, schemes map[scheme.Scheme]bool, typeRegex, groupRegex *regexp.Regexp, handler func(wire.Identifier, []byte)) (RegexSubscription, error) {
	if p.State() != Running {
		return 0, ErrShutdownInProgress{}
	}
	rec := subscription.Regex{
		Schemes:    schemes,
		TypeRegex:  typeRegex,
		GroupRegex: groupRegex,
		ThreadID:   int64(thread),
		Action:     subscription.Subscribe,
		Dispatch:   handler,
	}
	msg := &controlMsg{kind: ctlSubscribeRegex, regex: rec}
	if err := p.sendControl(msg); err != nil {
		return 0, err
	}
	return RegexSubscription(msg.resultID), nil
}

// UnsubscribeRegex removes a subscription installed by SubscribeRegex.
func UnsubscribeRegex(p *Portal, handle RegexSubscription) error {
	return p.sendControl(&controlMsg{kind: ctlUnsubscribeRegex, regexID: int64(handle)})
}

// UnsubscribeAll removes every typed and regex subscription thread owns.
// Callers must call this before a goroutine retires its ThreadID.
func UnsubscribeAll(p *Portal, thread ThreadID) error {
	return p.sendControl(&controlMsg{kind: ctlUnsubscribeAllForThread, thread: thread})
}

// ListSubscriptions implements admin.SubscriptionLister by snapshotting the
// Reader's live typed- and forwarder-subscription tables, for the
// /debug/subscriptions endpoint.
func (p *Portal) ListSubscriptions() []admin.SubscriptionInfo {
	msg := &controlMsg{kind: ctlSnapshot}
	if err := p.sendControl(msg); err != nil {
		return nil
	}
	return msg.snapshot
}
