package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeLister struct{ rows []SubscriptionInfo }

func (f fakeLister) ListSubscriptions() []SubscriptionInfo { return f.rows }

func TestDebugSubscriptionsReportsLister(t *testing.T) {
	lister := fakeLister{rows: []SubscriptionInfo{{Group: "Nav", Scheme: "structured", Type: "Waypoint", ThreadID: 1, Refcount: 2}}}
	srv := NewServer("127.0.0.1:0", false, nil, lister, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/subscriptions", nil)
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var got []SubscriptionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].Group != "Nav" {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestDebugSubscriptionsWithNoListerIsUnavailable(t *testing.T) {
	srv := NewServer("127.0.0.1:0", false, nil, nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/subscriptions", nil)
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", rec.Code)
	}
}

func TestFeedFansOutToSubscribers(t *testing.T) {
	f := NewFeed()
	id1, ch1 := f.subscribe()
	defer f.unsubscribe(id1)
	id2, ch2 := f.subscribe()
	defer f.unsubscribe(id2)

	f.Publish("/Nav/1/Waypoint/1/1")

	for _, ch := range []chan string{ch1, ch2} {
		select {
		case got := <-ch:
			if got != "/Nav/1/Waypoint/1/1" {
				t.Fatalf("unexpected message: %q", got)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for feed message")
		}
	}
}

func TestReadyEndpointReflectsPointer(t *testing.T) {
	ready := false
	srv := NewServer("127.0.0.1:0", false, &ready, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503 before ready, got %d", rec.Code)
	}

	ready = true
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200 once ready, got %d", rec.Code)
	}
}
