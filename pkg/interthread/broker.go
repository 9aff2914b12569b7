// Package interthread implements the Interthread Broker (spec §4.2): the
// process-global registry that delivers in-process publications to the
// subset of subscriber "threads" interested in a matching
// (scheme, type, group).
//
// Go goroutines carry no OS-thread identity the way the source language's
// threads do, so "thread" here is an explicit logical participant handle
// (ThreadID) the caller obtains once per goroutine it wants the broker to
// treat as one polling participant — the idiomatic Go stand-in for
// thread-local identity (see DESIGN.md).
package interthread

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluefin-robotics/middleware/pkg/group"
	"github.com/bluefin-robotics/middleware/pkg/scheme"
	"github.com/bluefin-robotics/middleware/pkg/serialize"
	logging "github.com/sirupsen/logrus"
)

// ThreadID identifies one logical polling participant. It is not an OS
// thread id; it is minted by NewThreadID and carried explicitly by the
// caller, one per goroutine that will call Subscribe/Publish/Poll as a
// single owner.
type ThreadID int64

var threadCounter int64

// NewThreadID mints a fresh, process-unique ThreadID.
func NewThreadID() ThreadID {
	return ThreadID(atomic.AddInt64(&threadCounter, 1))
}

// PublishConfig carries the publish-time options from spec §4.2.
type PublishConfig struct {
	// Echo, if true, allows a publisher that is also a subscriber to
	// (scheme, type, group) to receive its own publication.
	Echo bool
}

type subscriberKey struct {
	typ       reflect.Type
	scheme    scheme.Scheme
	groupName string
}

type callbackEntry struct {
	group   group.Group
	handler func(any)
}

type threadState struct {
	dataMu sync.Mutex
	queues map[subscriberKey][]any
	notify chan struct{}
}

func newThreadState() *threadState {
	return &threadState{
		queues: make(map[subscriberKey][]any),
		notify: make(chan struct{}, 1),
	}
}

func (ts *threadState) signal() {
	select {
	case ts.notify <- struct{}{}:
	default:
	}
}

// queueSoftLimit is the per-queue length at which Publish logs a one-time
// warning (spec SPEC_FULL §4.7 expansion, grounded on the original's
// queue-size watermark warning). It does not bound delivery: per spec
// §4.2 publish never blocks on a slow subscriber.
const queueSoftLimit = 10000

// Broker is the process-global interthread publish/subscribe registry.
// The zero value is not usable; construct with NewBroker.
type Broker struct {
	registry *serialize.Registry
	log      *logging.Entry

	mu      sync.RWMutex
	subs    map[subscriberKey]map[ThreadID]callbackEntry
	threads map[ThreadID]*threadState

	warnMu  sync.Mutex
	warned  map[subscriberKey]map[ThreadID]bool
}

// NewBroker returns a new, independent broker. reg may be nil, in which
// case every type's scheme(T) defaults to scheme.NativeObject (spec §4.1:
// "scheme(T), computed by examining T's capabilities"; a type with no
// registry entry has no declared wire capability).
func NewBroker(reg *serialize.Registry) *Broker {
	return &Broker{
		registry: reg,
		log:      logging.WithField("component", "interthread-broker"),
		subs:     make(map[subscriberKey]map[ThreadID]callbackEntry),
		threads:  make(map[ThreadID]*threadState),
		warned:   make(map[subscriberKey]map[ThreadID]bool),
	}
}

var (
	defaultOnce   sync.Once
	defaultBroker *Broker
)

// Default returns the process-wide broker instance, initializing it (with
// no registry) on first use, per spec §9 "Global broker state ... its
// init happens on first use". Applications that need scheme(T) resolved
// from a real registry should construct their own Broker with NewBroker
// instead of relying on Default.
func Default() *Broker {
	defaultOnce.Do(func() {
		defaultBroker = NewBroker(nil)
	})
	return defaultBroker
}

func typeOf[T any]() reflect.Type {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		t = reflect.TypeOf((*T)(nil)).Elem()
	}
	return t
}

func schemeOf[T any](b *Broker) scheme.Scheme {
	if b.registry != nil {
		if s, ok := serialize.DefaultScheme[T](b.registry); ok {
			return s
		}
	}
	return scheme.NativeObject
}

func keyFor[T any](b *Broker, g group.Group) subscriberKey {
	return subscriberKey{typ: typeOf[T](), scheme: schemeOf[T](b), groupName: g.Name()}
}

func (b *Broker) threadStateLocked(thread ThreadID) *threadState {
	ts, ok := b.threads[thread]
	if !ok {
		ts = newThreadState()
		b.threads[thread] = ts
	}
	return ts
}

// Subscribe registers handler on the calling thread for (scheme(T),
// type(T), group). It is idempotent per (thread, scheme, type, group): a
// duplicate subscribe is a no-op (spec §4.2, §9 Open Question resolution).
func Subscribe[T any](b *Broker, thread ThreadID, g group.Group, handler func(T)) {
	key := keyFor[T](b, g)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[key] == nil {
		b.subs[key] = make(map[ThreadID]callbackEntry)
	}
	if _, exists := b.subs[key][thread]; exists {
		return
	}
	b.subs[key][thread] = callbackEntry{
		group:   g,
		handler: func(v any) { handler(v.(T)) },
	}
	b.threadStateLocked(thread)
}

// Unsubscribe removes the calling thread's subscription for (scheme(T),
// type(T), group). If it was the last subscriber for that key on that
// thread, the per-group DataQueue is also removed.
func Unsubscribe[T any](b *Broker, thread ThreadID, g group.Group) {
	key := keyFor[T](b, g)

	b.mu.Lock()
	defer b.mu.Unlock()

	if m, ok := b.subs[key]; ok {
		delete(m, thread)
		if len(m) == 0 {
			delete(b.subs, key)
		}
	}
	if ts, ok := b.threads[thread]; ok {
		ts.dataMu.Lock()
		delete(ts.queues, key)
		ts.dataMu.Unlock()
	}
}

// UnsubscribeAll removes every subscription owned by thread, and its
// DataQueues and condition state. Callers must call this before a
// goroutine retires its ThreadID, or its queues leak (spec §4.2, §9).
func UnsubscribeAll(b *Broker, thread ThreadID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, m := range b.subs {
		if _, ok := m[thread]; ok {
			delete(m, thread)
			if len(m) == 0 {
				delete(b.subs, key)
			}
		}
	}
	delete(b.threads, thread)

	b.warnMu.Lock()
	for key, byThread := range b.warned {
		delete(byThread, thread)
		if len(byThread) == 0 {
			delete(b.warned, key)
		}
	}
	b.warnMu.Unlock()
}

// Publish enqueues value onto each matching subscriber's per-group FIFO
// and signals the affected subscriber threads. The publishing thread is
// excluded from its own matching subscription unless cfg.Echo is set
// (spec §4.2, §8 invariant 2).
func Publish[T any](b *Broker, thread ThreadID, g group.Group, value T, cfg PublishConfig) {
	key := keyFor[T](b, g)

	b.mu.RLock()
	subsByThread := b.subs[key]
	affected := make([]*threadState, 0, len(subsByThread))
	for tid := range subsByThread {
		if tid == thread && !cfg.Echo {
			continue
		}
		ts, ok := b.threads[tid]
		if !ok {
			continue
		}
		ts.dataMu.Lock()
		ts.queues[key] = append(ts.queues[key], value)
		n := len(ts.queues[key])
		ts.dataMu.Unlock()
		affected = append(affected, ts)
		b.maybeWarnQueueSize(key, tid, n)
	}
	b.mu.RUnlock()

	// Signalling sequence (spec §4.2): every affected subscriber's queue
	// has already been appended to and released above. Go's buffered,
	// non-blocking notify channel cannot suffer the classic condition
	// variable lost-wakeup race the spec's "poll mutex" handshake guards
	// against — a send into a channel a receiver has not yet selected on
	// simply buffers, it is never silently missed — so no separate poll
	// mutex step is needed here (see DESIGN.md).
	for _, ts := range affected {
		ts.signal()
	}
}

func (b *Broker) maybeWarnQueueSize(key subscriberKey, thread ThreadID, size int) {
	if size < queueSoftLimit {
		return
	}
	b.warnMu.Lock()
	defer b.warnMu.Unlock()
	if b.warned[key] == nil {
		b.warned[key] = make(map[ThreadID]bool)
	}
	if b.warned[key][thread] {
		return
	}
	b.warned[key][thread] = true
	b.log.WithFields(logging.Fields{
		"group":  key.groupName,
		"thread": thread,
		"size":   size,
	}).Warn("interthread subscriber queue has grown past soft watermark")
}

// Poll drains the calling thread's DataQueues and invokes each drained
// handle's handler exactly once, returning the number of handlers
// invoked. A timeout of zero is non-blocking; a negative timeout waits
// indefinitely; a positive timeout waits up to that long (spec §4.2, §5).
func Poll(b *Broker, thread ThreadID, timeout time.Duration) (int, error) {
	b.mu.RLock()
	ts, ok := b.threads[thread]
	b.mu.RUnlock()
	if !ok {
		return 0, nil
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		ts.dataMu.Lock()
		hasData := len(ts.queues) > 0
		ts.dataMu.Unlock()
		if hasData {
			break
		}
		if timeout == 0 {
			return 0, nil
		}
		select {
		case <-ts.notify:
			continue
		case <-deadline:
			return 0, nil
		}
	}

	ts.dataMu.Lock()
	drained := ts.queues
	ts.queues = make(map[subscriberKey][]any)
	ts.dataMu.Unlock()

	count := 0
	b.mu.RLock()
	for key, items := range drained {
		entry, ok := b.subs[key][thread]
		if !ok {
			continue
		}
		for _, v := range items {
			entry.handler(v)
			count++
		}
	}
	b.mu.RUnlock()

	return count, nil
}
