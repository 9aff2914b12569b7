// Package admin adapts the teacher's admin/debug HTTP server to this
// middleware's domain: alongside the usual /ping, /ready, /metrics and
// pprof endpoints, it exposes /debug/subscriptions (a JSON snapshot of live
// subscriptions, grounded on the teacher's httprouter-based tap apiserver)
// and /debug/feed (a websocket stream of forwarded publication identifiers,
// for live operator debugging — a raw wire-level tap, not a GUI frontend).
package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logging "github.com/sirupsen/logrus"
)

// SubscriptionInfo is one row of the /debug/subscriptions snapshot.
type SubscriptionInfo struct {
	Group    string `json:"group"`
	Scheme   string `json:"scheme"`
	Type     string `json:"type"`
	ThreadID int64  `json:"thread_id"`
	Refcount int    `json:"refcount"`
}

// SubscriptionLister is implemented by whatever component (Router or
// Portal) owns the live subscription table a /debug/subscriptions request
// should report.
type SubscriptionLister interface {
	ListSubscriptions() []SubscriptionInfo
}

// Feed fans identifier strings out to every currently-connected
// /debug/feed websocket client. Publish is safe to call from the Router's
// broadcast path; slow or absent clients never block it.
type Feed struct {
	mu      sync.Mutex
	clients map[int64]chan string
	nextID  int64
}

// NewFeed returns an empty Feed.
func NewFeed() *Feed {
	return &Feed{clients: make(map[int64]chan string)}
}

// Publish fans identifier out to every connected client's buffered channel,
// dropping the message for any client whose buffer is full rather than
// blocking the caller.
func (f *Feed) Publish(identifier string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.clients {
		select {
		case ch <- identifier:
		default:
		}
	}
}

func (f *Feed) subscribe() (int64, chan string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	ch := make(chan string, 64)
	f.clients[id] = ch
	return id, ch
}

func (f *Feed) unsubscribe(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.clients, id)
}

type handler struct {
	promHandler http.Handler
	enablePprof bool
	ready       *bool
	lister      SubscriptionLister
	feed        *Feed
	router      *httprouter.Router
	upgrader    websocket.Upgrader
	log         *logging.Entry
}

// NewServer returns an initialized http.Server exposing the admin/debug
// surface. lister and feed may be nil, in which case /debug/subscriptions
// and /debug/feed report 503 Service Unavailable. ready reports readiness
// for /ready; pass nil to always report ready once the server is serving.
func NewServer(addr string, enablePprof bool, ready *bool, lister SubscriptionLister, feed *Feed) *http.Server {
	h := &handler{
		promHandler: promhttp.Handler(),
		enablePprof: enablePprof,
		ready:       ready,
		lister:      lister,
		feed:        feed,
		log:         logging.WithField("component", "admin"),
	}

	r := httprouter.New()
	r.GET("/debug/subscriptions", h.handleSubscriptions)
	r.GET("/debug/feed", h.handleFeed)
	h.router = r

	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 15 * time.Second,
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	debugPathPrefix := "/debug/pprof/"
	if h.enablePprof && strings.HasPrefix(req.URL.Path, debugPathPrefix) {
		switch req.URL.Path {
		case fmt.Sprintf("%scmdline", debugPathPrefix):
			pprof.Cmdline(w, req)
		case fmt.Sprintf("%sprofile", debugPathPrefix):
			pprof.Profile(w, req)
		case fmt.Sprintf("%strace", debugPathPrefix):
			pprof.Trace(w, req)
		case fmt.Sprintf("%ssymbol", debugPathPrefix):
			pprof.Symbol(w, req)
		default:
			pprof.Index(w, req)
		}
		return
	}
	switch req.URL.Path {
	case "/metrics":
		h.promHandler.ServeHTTP(w, req)
	case "/ping":
		h.servePing(w)
	case "/ready":
		h.serveReady(w)
	case "/debug/subscriptions", "/debug/feed":
		h.router.ServeHTTP(w, req)
	default:
		http.NotFound(w, req)
	}
}

func (h *handler) servePing(w http.ResponseWriter) {
	w.Write([]byte("pong\n"))
}

func (h *handler) serveReady(w http.ResponseWriter) {
	if h.ready != nil && !*h.ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready\n"))
		return
	}
	w.Write([]byte("ok\n"))
}

func (h *handler) handleSubscriptions(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	if h.lister == nil {
		http.Error(w, "subscription introspection not configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.lister.ListSubscriptions())
}

func (h *handler) handleFeed(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	if h.feed == nil {
		http.Error(w, "publication feed not configured", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.log.WithError(err).Debug("admin: websocket upgrade failed")
		return
	}
	defer conn.Close()

	id, ch := h.feed.subscribe()
	defer h.feed.unsubscribe(id)

	for identifier := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(identifier)); err != nil {
			return
		}
	}
}
