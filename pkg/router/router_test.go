package router

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/bluefin-robotics/middleware/pkg/wire"
)

func TestRouterFansOutToAllSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt := New(Config{PublishAddr: "127.0.0.1:0", SubscribeAddr: "127.0.0.1:0"})
	if err := rt.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	go rt.Serve(ctx)

	const subscribers = 3
	conns := make([]net.Conn, subscribers)
	readers := make([]*bufio.Reader, subscribers)
	for i := range conns {
		c, err := net.Dial("tcp", rt.BoundSubscribeAddr())
		if err != nil {
			t.Fatalf("dial subscribe side: %v", err)
		}
		defer c.Close()
		conns[i] = c
		readers[i] = bufio.NewReader(c)
	}

	// Give the router a moment to register each subscriber connection
	// before publishing, since registration happens on its own goroutine.
	time.Sleep(20 * time.Millisecond)

	pub, err := net.Dial("tcp", rt.BoundPublishAddr())
	if err != nil {
		t.Fatalf("dial publish side: %v", err)
	}
	defer pub.Close()

	msg := []byte("hello")
	if err := wire.WriteMessage(pub, msg); err != nil {
		t.Fatalf("write: %v", err)
	}

	for i, r := range readers {
		conns[i].SetReadDeadline(time.Now().Add(2 * time.Second))
		got, err := wire.ReadMessage(r)
		if err != nil {
			t.Fatalf("subscriber %d read: %v", i, err)
		}
		if string(got) != "hello" {
			t.Fatalf("subscriber %d: want %q, got %q", i, "hello", got)
		}
	}
}
