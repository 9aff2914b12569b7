package manager

import (
	"context"
	"testing"
	"time"
)

func TestManagerAnswersProvidePubSubSockets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := New("127.0.0.1:0")
	mgr.Handle(ProvidePubSubSockets, func(Request) (any, error) {
		return ProvidePubSubSocketsReply{
			Publish:   SocketDescriptor{Transport: "tcp", Address: "127.0.0.1:9001"},
			Subscribe: SocketDescriptor{Transport: "tcp", Address: "127.0.0.1:9002"},
		}, nil
	})

	addr, err := mgr.Serve(ctx)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}

	reply, err := RequestPubSubSockets(addr, time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if reply.Publish.Address != "127.0.0.1:9001" || reply.Subscribe.Address != "127.0.0.1:9002" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestManagerUnknownRequestTypeIsAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := New("127.0.0.1:0")
	addr, err := mgr.Serve(ctx)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}

	if _, err := RequestPubSubSockets(addr, time.Second); err == nil {
		t.Fatal("expected an error for a manager with no registered handler")
	}
}
