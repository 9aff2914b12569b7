package interthread

import (
	"sync"
	"testing"
	"time"

	"github.com/bluefin-robotics/middleware/pkg/group"
	"github.com/go-test/deep"
)

type sample struct {
	A int32
}

// TestSingleThreadRoundTrip is scenario S1: one thread subscribes and
// publishes to itself (with echo) and must see its own values in order.
func TestSingleThreadRoundTrip(t *testing.T) {
	b := NewBroker(nil)
	th := NewThreadID()
	defer UnsubscribeAll(b, th)

	g := group.New("Sample1")
	var got []int32
	Subscribe[sample](b, th, g, func(s sample) { got = append(got, s.A) })

	for _, v := range []int32{0, 1, 2} {
		Publish(b, th, g, sample{A: v}, PublishConfig{Echo: true})
	}

	n, err := Poll(b, th, 0)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 handler invocations, got %d", n)
	}
	if diff := deep.Equal(got, []int32{0, 1, 2}); diff != nil {
		t.Fatalf("unexpected order: %v", diff)
	}
}

// TestFanOutToManySubscribers is scenario S2.
func TestFanOutToManySubscribers(t *testing.T) {
	b := NewBroker(nil)
	g := group.New("Widget")
	const subscribers = 10
	const values = 100

	type widget struct{ B int }

	var wg sync.WaitGroup
	results := make([][]int, subscribers)
	threads := make([]ThreadID, subscribers)
	for i := 0; i < subscribers; i++ {
		th := NewThreadID()
		threads[i] = th
		idx := i
		Subscribe[widget](b, th, g, func(w widget) { results[idx] = append(results[idx], w.B) })
	}
	defer func() {
		for _, th := range threads {
			UnsubscribeAll(b, th)
		}
	}()

	publisher := NewThreadID()
	defer UnsubscribeAll(b, publisher)
	for v := -8; v < 92; v++ {
		Publish(b, publisher, g, widget{B: v}, PublishConfig{})
	}

	wg.Add(subscribers)
	for i, th := range threads {
		go func(th ThreadID, idx int) {
			defer wg.Done()
			total := 0
			for total < values {
				n, err := Poll(b, th, time.Second)
				if err != nil {
					t.Errorf("poll: %v", err)
					return
				}
				if n == 0 {
					t.Errorf("subscriber %d timed out after %d/%d", idx, total, values)
					return
				}
				total += n
			}
		}(th, i)
	}
	wg.Wait()

	want := make([]int, values)
	for i := range want {
		want[i] = -8 + i
	}
	for i, got := range results {
		if diff := deep.Equal(got, want); diff != nil {
			t.Fatalf("subscriber %d: %v", i, diff)
		}
	}
}

// TestEchoPolicy is invariant 2: self-delivery iff config.Echo.
func TestEchoPolicy(t *testing.T) {
	b := NewBroker(nil)
	th := NewThreadID()
	defer UnsubscribeAll(b, th)
	g := group.New("loopback")

	invoked := 0
	Subscribe[int](b, th, g, func(int) { invoked++ })

	Publish(b, th, g, 1, PublishConfig{Echo: false})
	if n, _ := Poll(b, th, 0); n != 0 {
		t.Fatalf("expected no self-delivery without echo, got %d", n)
	}

	Publish(b, th, g, 1, PublishConfig{Echo: true})
	if n, _ := Poll(b, th, 0); n != 1 {
		t.Fatalf("expected self-delivery with echo, got %d", n)
	}
	if invoked != 1 {
		t.Fatalf("want handler invoked once, got %d", invoked)
	}
}

// TestSubscribeUnsubscribeNoPublishInBetween is invariant 3.
func TestSubscribeUnsubscribeNoPublishInBetween(t *testing.T) {
	b := NewBroker(nil)
	th := NewThreadID()
	g := group.New("transient")

	invoked := 0
	Subscribe[int](b, th, g, func(int) { invoked++ })
	Unsubscribe[int](b, th, g)

	publisher := NewThreadID()
	defer UnsubscribeAll(b, publisher)
	Publish(b, publisher, g, 42, PublishConfig{})

	if n, _ := Poll(b, th, 0); n != 0 {
		t.Fatalf("expected 0 invocations after unsubscribe, got %d", n)
	}
	if invoked != 0 {
		t.Fatalf("handler should never have been invoked, got %d", invoked)
	}
}

// TestDuplicateSubscribeIsNoOp checks the idempotency resolution from
// spec §9's Open Question: a second subscribe does not add a second
// handler invocation per publish.
func TestDuplicateSubscribeIsNoOp(t *testing.T) {
	b := NewBroker(nil)
	th := NewThreadID()
	defer UnsubscribeAll(b, th)
	g := group.New("dup")

	calls := 0
	Subscribe[int](b, th, g, func(int) { calls++ })
	Subscribe[int](b, th, g, func(int) { calls += 100 }) // should be ignored

	Publish(b, th, g, 1, PublishConfig{Echo: true})
	if n, _ := Poll(b, th, 0); n != 1 {
		t.Fatalf("want 1 invocation, got %d", n)
	}
	if calls != 1 {
		t.Fatalf("want first handler retained (calls=1), got %d", calls)
	}
}

// TestUnsubscribeAllRemovesEverySubscription covers the DataQueue/condition
// state cleanup spec §4.2 requires.
func TestUnsubscribeAllRemovesEverySubscription(t *testing.T) {
	b := NewBroker(nil)
	th := NewThreadID()
	g1, g2 := group.New("a"), group.New("b")

	Subscribe[int](b, th, g1, func(int) {})
	Subscribe[int](b, th, g2, func(int) {})
	UnsubscribeAll(b, th)

	publisher := NewThreadID()
	defer UnsubscribeAll(b, publisher)
	Publish(b, publisher, g1, 1, PublishConfig{})
	Publish(b, publisher, g2, 2, PublishConfig{})

	if n, _ := Poll(b, th, 0); n != 0 {
		t.Fatalf("thread should have no state after UnsubscribeAll, got %d handlers", n)
	}
}
