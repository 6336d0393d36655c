package currency

import "testing"

func TestParseRoundTrip(t *testing.T) {
	for _, c := range All() {
		got, err := Parse(c.String())
		if err != nil {
			t.Fatalf("parse %s: %v", c, err)
		}
		if got != c {
			t.Fatalf("parse %s: got %s", c, got)
		}
	}
}

func TestParseNormalisesInput(t *testing.T) {
	got, err := Parse(" cop ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != COP {
		t.Fatalf("got %s want COP", got)
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	if _, err := Parse("KES"); err == nil {
		t.Fatalf("expected error for KES")
	}
}

func TestUnmarshalText(t *testing.T) {
	var c Code
	if err := c.UnmarshalText([]byte("mxn")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c != MXN {
		t.Fatalf("got %s", c)
	}
	if _, err := Code(42).MarshalText(); err == nil {
		t.Fatalf("expected marshal error for out-of-range code")
	}
}

func TestMinWithdrawal(t *testing.T) {
	m := DefaultMinWithdrawal()
	if m.For(COP) != 200_000 {
		t.Fatalf("COP minimum: got %v", m.For(COP))
	}
	m[COP] = 1
	if DefaultMinWithdrawal().For(COP) != 200_000 {
		t.Fatalf("DefaultMinWithdrawal must return a copy")
	}
}
