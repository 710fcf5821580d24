package subrule

import "testing"

func TestPackUnpack(t *testing.T) {
	id := New(7, 3)
	if id.RuleIndex() != 7 || id.Expansion() != 3 {
		t.Fatalf("got rule=%d expansion=%d, want 7,3", id.RuleIndex(), id.Expansion())
	}
}

func TestIntersect(t *testing.T) {
	a := NewSet(New(1, 0), New(2, 0), New(3, 0))
	b := NewSet(New(2, 0), New(3, 0), New(4, 0))
	got := a.Intersect(b)
	if got.Len() != 2 || !got.Contains(New(2, 0)) || !got.Contains(New(3, 0)) {
		t.Fatalf("intersection wrong: %v", got)
	}
}

func TestIntersectEmpty(t *testing.T) {
	a := NewSet(New(1, 0))
	var b Set
	if got := a.Intersect(b); got.Len() != 0 {
		t.Fatalf("intersect with empty should be empty, got %v", got)
	}
}

func TestUnion(t *testing.T) {
	a := NewSet(New(1, 0))
	b := NewSet(New(2, 0))
	got := a.Union(b)
	if got.Len() != 2 {
		t.Fatalf("union should have 2 members, got %d", got.Len())
	}
}
