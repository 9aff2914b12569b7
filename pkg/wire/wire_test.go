package wire

import (
	"testing"

	"github.com/bluefin-robotics/middleware/pkg/group"
	"github.com/bluefin-robotics/middleware/pkg/scheme"
	"github.com/go-test/deep"
)

// TestIdentifierRoundTrip is spec §8 invariant 4:
// ParseIdentifier(id.String()) == id for every field.
func TestIdentifierRoundTrip(t *testing.T) {
	ids := []Identifier{
		{Group: group.New("Nav"), Scheme: scheme.Structured, Type: "Waypoint", Process: 12, Thread: 3},
		{Group: group.New("empty-type"), Scheme: scheme.CString, Type: "", Process: 0, Thread: 0},
		{Group: group.New("neg"), Scheme: scheme.NullScheme, Type: "Ctl", Process: -1, Thread: -2},
	}
	for _, id := range ids {
		got, err := ParseIdentifier(id.String())
		if err != nil {
			t.Fatalf("parse %q: %v", id.String(), err)
		}
		if diff := deep.Equal(got, id); diff != nil {
			t.Fatalf("round trip mismatch for %q: %v", id.String(), diff)
		}
	}
}

func TestParseIdentifierRejectsMalformed(t *testing.T) {
	cases := []string{
		"no-leading-slash/1/Type/1/1",
		"/too/few/segments",
		"/Group/notanumber/Type/1/1",
		"/Group/1/Type/notanumber/1",
		"/Group/1/Type/1/notanumber",
	}
	for _, s := range cases {
		if _, err := ParseIdentifier(s); err == nil {
			t.Fatalf("expected error parsing %q", s)
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	id := Identifier{Group: group.New("Nav"), Scheme: scheme.Structured, Type: "Waypoint", Process: 7, Thread: 2}
	payload := []byte(`{"lat":1,"lon":2}`)

	frame := EncodeFrame(id, payload)
	gotID, gotPayload, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := deep.Equal(gotID, id); diff != nil {
		t.Fatalf("identifier mismatch: %v", diff)
	}
	if string(gotPayload) != string(payload) {
		t.Fatalf("payload mismatch: want %q, got %q", payload, gotPayload)
	}
}

func TestManagerFrameRoundTrip(t *testing.T) {
	body := []byte(`{"type":"ProvidePubSubSockets"}`)
	frame := EncodeManagerFrame(body)

	got, err := DecodeManagerFrame(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("body mismatch: want %q, got %q", body, got)
	}
}

func TestDecodeManagerFrameRejectsBadSentinel(t *testing.T) {
	bad := append([]byte("XXXX"), 0x00)
	if _, err := DecodeManagerFrame(bad); err == nil {
		t.Fatal("expected error for bad sentinel")
	}
}

func TestDecodeManagerFrameRejectsShortFrame(t *testing.T) {
	if _, err := DecodeManagerFrame([]byte("MGR")); err == nil {
		t.Fatal("expected error for short frame")
	}
}
