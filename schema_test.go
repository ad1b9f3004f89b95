package geotile

import "testing"

func TestSchemaEnsureIsIdempotent(t *testing.T) {
	s := newSchema()
	a, err := s.Ensure("highway")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	b, err := s.Ensure("highway")
	if err != nil {
		t.Fatalf("Ensure (again): %v", err)
	}
	if a != b {
		t.Fatalf("Ensure(\"highway\") returned %d then %d, want the same bit both times", a, b)
	}
}

func TestSchemaBitMatchesIndexOf(t *testing.T) {
	s := newSchema()
	idx, _ := s.Ensure("amenity")
	if got, want := s.Bit("amenity"), uint64(1)<<idx; got != want {
		t.Fatalf("Bit(\"amenity\") = %#x, want %#x", got, want)
	}
	if s.Bit("never-indexed") != 0 {
		t.Fatalf("Bit on an unindexed key should be 0")
	}
}

func TestSchemaEnsureRejectsOverflow(t *testing.T) {
	s := newSchema()
	for i := 0; i < maxSchemaKeys; i++ {
		if _, err := s.Ensure(string(rune('a' + i%26)) + string(rune(i))); err != nil {
			t.Fatalf("Ensure #%d: %v", i, err)
		}
	}
	if _, err := s.Ensure("one-too-many"); err == nil {
		t.Fatalf("Ensure beyond maxSchemaKeys should fail")
	}
}

func TestSchemaEncodeDecodeRoundTrip(t *testing.T) {
	s := newSchema()
	s.Ensure("highway")
	s.Ensure("amenity")

	decoded, err := decodeSchema(encodeSchema(s))
	if err != nil {
		t.Fatalf("decodeSchema: %v", err)
	}
	if decoded.Bit("highway") != s.Bit("highway") || decoded.Bit("amenity") != s.Bit("amenity") {
		t.Fatalf("decoded schema bits do not match original")
	}
}
