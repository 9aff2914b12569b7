// Package router implements the Router (spec §4.5): a fan-out proxy, shaped
// like an XSUB/XPUB pair, that accepts publications on one bound endpoint
// from every connected Portal and relays each one verbatim to every Portal
// connected on the other bound endpoint.
//
// Prefix filtering (spec §4.3's SUB-filter) happens at the subscriber's
// Reader, not here: the Router itself does no per-connection subscription
// bookkeeping, matching the steady-state data-plane behavior of an
// XSUB/XPUB proxy while leaving out its upstream subscription-propagation
// bandwidth optimization (see DESIGN.md — that optimization only reduces
// traffic, it does not change what a correct subscriber observes).
package router

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/bluefin-robotics/middleware/pkg/admin"
	"github.com/bluefin-robotics/middleware/pkg/wire"
	logging "github.com/sirupsen/logrus"
)

// Config names the two addresses the Router binds. Use "host:0" to let the
// OS pick an ephemeral port; BoundPublishAddr/BoundSubscribeAddr report the
// addresses actually bound once Serve has started.
type Config struct {
	// PublishAddr is the backend endpoint Portals connect their PUB socket
	// to (it accepts publishers; spec's XSUB-shaped side).
	PublishAddr string
	// SubscribeAddr is the frontend endpoint Portals connect their SUB
	// socket to (it accepts subscribers; spec's XPUB-shaped side).
	SubscribeAddr string
}

// Router is the process-local fan-out proxy described above.
type Router struct {
	cfg Config
	log *logging.Entry

	mu             sync.RWMutex
	subscribers    map[int64]*subscriberConn
	nextConnID     int64
	boundPublish   string
	boundSubscribe string
	pubListener    net.Listener
	subListener    net.Listener
	feed           *admin.Feed
}

// subscriberConn pairs a subscriber's connection with a write mutex: two
// publishers' relay goroutines can race to broadcast onto the same
// subscriber connection concurrently, and wire.WriteMessage is two separate
// Writes (length prefix, then body) that must not interleave.
type subscriberConn struct {
	conn net.Conn
	mu   sync.Mutex
}

// SetFeed wires an admin.Feed to receive the identifier of every frame the
// Router relays, for the /debug/feed websocket endpoint. Must be called
// before Serve.
func (r *Router) SetFeed(feed *admin.Feed) {
	r.feed = feed
}

// ListSubscriptions implements admin.SubscriptionLister with the one fact
// the Router itself knows: how many subscriber connections are currently
// attached. Per-type subscription detail lives at the Portal, not here.
func (r *Router) ListSubscriptions() []admin.SubscriptionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return []admin.SubscriptionInfo{{
		Group:    "*",
		Scheme:   "*",
		Type:     "*",
		ThreadID: 0,
		Refcount: len(r.subscribers),
	}}
}

// New returns a Router that will bind cfg's addresses once Serve is called.
func New(cfg Config) *Router {
	return &Router{
		cfg:         cfg,
		log:         logging.WithField("component", "router"),
		subscribers: make(map[int64]*subscriberConn),
	}
}

// Listen binds both endpoints, so BoundPublishAddr/BoundSubscribeAddr are
// valid as soon as it returns. Serve must be called afterward to actually
// relay traffic.
func (r *Router) Listen() error {
	pubListener, err := net.Listen("tcp", r.cfg.PublishAddr)
	if err != nil {
		return err
	}
	subListener, err := net.Listen("tcp", r.cfg.SubscribeAddr)
	if err != nil {
		pubListener.Close()
		return err
	}

	r.mu.Lock()
	r.boundPublish = pubListener.Addr().String()
	r.boundSubscribe = subListener.Addr().String()
	r.pubListener = pubListener
	r.subListener = subListener
	r.mu.Unlock()

	r.log.WithFields(logging.Fields{
		"publish_addr":   r.boundPublish,
		"subscribe_addr": r.boundSubscribe,
	}).Info("router listening")
	return nil
}

// Serve relays traffic between the endpoints Listen bound, until ctx is
// done. Listen must be called first.
func (r *Router) Serve(ctx context.Context) error {
	r.mu.RLock()
	pubListener, subListener := r.pubListener, r.subListener
	r.mu.RUnlock()
	if pubListener == nil || subListener == nil {
		if err := r.Listen(); err != nil {
			return err
		}
		r.mu.RLock()
		pubListener, subListener = r.pubListener, r.subListener
		r.mu.RUnlock()
	}

	go func() {
		<-ctx.Done()
		pubListener.Close()
		subListener.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.acceptPublishers(ctx, pubListener)
	}()
	go func() {
		defer wg.Done()
		r.acceptSubscribers(ctx, subListener)
	}()
	wg.Wait()
	return nil
}

// BoundPublishAddr returns the backend address Portals should PUB-connect
// to, valid once Serve has started.
func (r *Router) BoundPublishAddr() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.boundPublish
}

// BoundSubscribeAddr returns the frontend address Portals should
// SUB-connect to, valid once Serve has started.
func (r *Router) BoundSubscribeAddr() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.boundSubscribe
}

func (r *Router) acceptPublishers(ctx context.Context, lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.WithError(err).Warn("router publish-side accept failed")
			continue
		}
		go r.relayFromPublisher(conn)
	}
}

func (r *Router) relayFromPublisher(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		frame, err := wire.ReadMessage(reader)
		if err != nil {
			return
		}
		if r.feed != nil {
			if id, _, err := wire.DecodeFrame(frame); err == nil {
				r.feed.Publish(id.String())
			}
		}
		r.broadcast(frame)
	}
}

func (r *Router) broadcast(frame []byte) {
	r.mu.RLock()
	targets := make([]*subscriberConn, 0, len(r.subscribers))
	for _, c := range r.subscribers {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.mu.Lock()
		err := wire.WriteMessage(c.conn, frame)
		c.mu.Unlock()
		if err != nil {
			r.log.WithError(err).Debug("router dropped a slow or closed subscriber connection")
		}
	}
}

func (r *Router) acceptSubscribers(ctx context.Context, lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.WithError(err).Warn("router subscribe-side accept failed")
			continue
		}
		go r.serveSubscriber(conn)
	}
}

func (r *Router) serveSubscriber(conn net.Conn) {
	defer conn.Close()

	r.mu.Lock()
	id := r.nextConnID
	r.nextConnID++
	r.subscribers[id] = &subscriberConn{conn: conn}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.subscribers, id)
		r.mu.Unlock()
	}()

	// A subscriber connection is otherwise write-only from the Router's
	// perspective; block here so a closed or broken connection is detected
	// and the subscriber is unregistered.
	reader := bufio.NewReader(conn)
	for {
		if _, err := wire.ReadMessage(reader); err != nil {
			return
		}
	}
}
