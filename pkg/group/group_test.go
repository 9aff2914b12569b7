package group

import "testing"

func TestGroupIdentityIsName(t *testing.T) {
	a := New("Nav")
	b := New("Nav")
	if a != b {
		t.Fatal("two groups with the same name should compare equal")
	}
	if a.Name() != "Nav" || a.String() != "Nav" {
		t.Fatalf("unexpected name/string: %q / %q", a.Name(), a.String())
	}
}

func TestZeroGroup(t *testing.T) {
	var g Group
	if !g.Zero() {
		t.Fatal("zero-value Group should report Zero() true")
	}
	if New("x").Zero() {
		t.Fatal("a named group should report Zero() false")
	}
}
