package subscription

import (
	"regexp"
	"testing"

	"github.com/bluefin-robotics/middleware/pkg/group"
	"github.com/bluefin-robotics/middleware/pkg/scheme"
	"github.com/bluefin-robotics/middleware/pkg/wire"
)

func TestRegexMatchesOnSchemeTypeAndGroup(t *testing.T) {
	r := Regex{
		Schemes:   map[scheme.Scheme]bool{scheme.Structured: true},
		TypeRegex: regexp.MustCompile(`^Waypoint.*`),
	}

	matching := wire.Identifier{Group: group.New("Nav"), Scheme: scheme.Structured, Type: "WaypointUpdate"}
	if !r.Matches(matching) {
		t.Fatal("expected match")
	}

	wrongScheme := matching
	wrongScheme.Scheme = scheme.CompactEncoded
	if r.Matches(wrongScheme) {
		t.Fatal("expected scheme mismatch to exclude")
	}

	wrongType := matching
	wrongType.Type = "Heading"
	if r.Matches(wrongType) {
		t.Fatal("expected type mismatch to exclude")
	}
}

func TestRegexWithNoConstraintsMatchesEverything(t *testing.T) {
	r := Regex{}
	id := wire.Identifier{Group: group.New("anything"), Scheme: scheme.CString, Type: "Whatever"}
	if !r.Matches(id) {
		t.Fatal("expected a zero-value Regex to match everything")
	}
}

func TestTypedKeyIsPortalPrefix(t *testing.T) {
	typed := Typed{Group: group.New("Nav"), Scheme: scheme.Structured, TypeName: "Waypoint"}
	want := wire.PortalPrefix(group.New("Nav"), scheme.Structured, "Waypoint")
	if typed.Key() != want {
		t.Fatalf("want %q, got %q", want, typed.Key())
	}
}
