package query

import (
	"errors"
	"testing"
)

func TestKeyEquality(t *testing.T) {
	a := MustKey("analytics-summary", 30)
	b := MustKey("analytics-summary", int64(30))
	c := MustKey("analytics-summary", uint8(30))
	d := MustKey("analytics-summary", "30")

	if !a.Equal(b) {
		t.Fatalf("int kinds should compare equal: %s vs %s", a, b)
	}
	if !a.Equal(c) {
		t.Fatalf("signed and unsigned parts of the same value should compare equal: %s vs %s", a, c)
	}
	if a.Equal(d) {
		t.Fatalf("string part must not equal number part")
	}
	if a.Topic() != "analytics-summary" {
		t.Fatalf("unexpected topic %q", a.Topic())
	}
	if a.Len() != 2 || a.Part(1) != int64(30) {
		t.Fatalf("unexpected parts %v", a.Part(1))
	}
}

func TestKeyUnsignedBeyondInt64(t *testing.T) {
	big := MustKey("x", uint64(1)<<63)
	if big.Equal(MustKey("x", int64(-1)<<63)) {
		t.Fatalf("2^63 must not equal -2^63")
	}
	if big.String() != "s:\"x\"|u:9223372036854775808" {
		t.Fatalf("unexpected encoding %s", big)
	}
	if !MustKey("x", uint(1)).Equal(MustKey("x", 1)) {
		t.Fatalf("uint(1) should equal 1")
	}
}

func TestKeyEncodingIsUnambiguous(t *testing.T) {
	a := MustKey("a|s:b")
	b := MustKey("a", "b")
	if a.Equal(b) {
		t.Fatalf("separator inside a string must not split parts")
	}
}

func TestKeyTopicRequiresLeadingString(t *testing.T) {
	k := MustKey(7, "events")
	if k.Topic() != "" {
		t.Fatalf("expected empty topic, got %q", k.Topic())
	}
}

func TestKeyRejectsNonPrimitiveParts(t *testing.T) {
	if _, err := NewKey(); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for empty key, got %v", err)
	}
	if _, err := NewKey("logs", map[string]int{"limit": 50}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("MustKey should panic")
		}
	}()
	MustKey([]string{"x"})
}
