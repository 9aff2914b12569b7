package serialize

import (
	"errors"
	"testing"

	"github.com/bluefin-robotics/middleware/pkg/scheme"
	"github.com/go-test/deep"
)

type widget struct {
	Name  string
	Count int
}

// TestSchemeRoundTrips is spec §8 invariant 5: Parse(Serialize(v)) == v for
// every registered (scheme, type) pair.
func TestSchemeRoundTrips(t *testing.T) {
	reg := NewRegistry()
	RegisterCString(reg, "cstr")
	RegisterStructured[widget](reg, "widget")
	RegisterCompact[widget](reg, "widget")
	RegisterColumnar[widget](reg, "widget")

	t.Run("CString", func(t *testing.T) {
		b, err := Serialize(reg, scheme.CString, "hello")
		if err != nil {
			t.Fatalf("serialize: %v", err)
		}
		got, err := Parse[string](reg, scheme.CString, b)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if got != "hello" {
			t.Fatalf("want %q, got %q", "hello", got)
		}
	})

	w := widget{Name: "bolt", Count: 12}
	for _, s := range []scheme.Scheme{scheme.Structured, scheme.CompactEncoded, scheme.Columnar} {
		s := s
		t.Run(s.String(), func(t *testing.T) {
			b, err := Serialize(reg, s, w)
			if err != nil {
				t.Fatalf("serialize: %v", err)
			}
			got, err := Parse[widget](reg, s, b)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if diff := deep.Equal(got, w); diff != nil {
				t.Fatalf("round trip mismatch: %v", diff)
			}
		})
	}
}

func TestNativeObjectHasNoWireForm(t *testing.T) {
	reg := NewRegistry()
	RegisterNative[widget](reg, "widget")

	if _, err := Serialize(reg, scheme.NativeObject, widget{}); !errors.Is(err, ErrNativeObjectNoWireForm) {
		t.Fatalf("want ErrNativeObjectNoWireForm, got %v", err)
	}
	if _, err := Parse[widget](reg, scheme.NativeObject, nil); !errors.Is(err, ErrNativeObjectNoWireForm) {
		t.Fatalf("want ErrNativeObjectNoWireForm, got %v", err)
	}
}

func TestUnsupportedSchemeIsReported(t *testing.T) {
	reg := NewRegistry()
	RegisterStructured[widget](reg, "widget")

	if _, err := Serialize(reg, scheme.Columnar, widget{}); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("want ErrUnsupportedScheme, got %v", err)
	}
}

func TestDefaultSchemeIsFirstRegistered(t *testing.T) {
	reg := NewRegistry()
	RegisterStructured[widget](reg, "widget")
	RegisterCompact[widget](reg, "widget")

	got, ok := DefaultScheme[widget](reg)
	if !ok {
		t.Fatal("expected a default scheme to be set")
	}
	if got != scheme.Structured {
		t.Fatalf("want first-registered scheme Structured, got %v", got)
	}
}

func TestDynamicPoolRoundTrip(t *testing.T) {
	pool := NewDynamicPool()
	RegisterDynamic[widget](pool, "widget")

	b, err := pool.Serialize("widget", widget{Name: "nut", Count: 4})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	v, err := pool.Parse("widget", b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, ok := v.(widget)
	if !ok {
		t.Fatalf("want widget, got %T", v)
	}
	if diff := deep.Equal(got, widget{Name: "nut", Count: 4}); diff != nil {
		t.Fatalf("round trip mismatch: %v", diff)
	}
}

func TestDynamicPoolUnknownType(t *testing.T) {
	pool := NewDynamicPool()
	if _, err := pool.Parse("nonexistent", nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("want ErrUnknownType, got %v", err)
	}
	if pool.Has("nonexistent") {
		t.Fatal("Has should report false for an unregistered type")
	}
}
