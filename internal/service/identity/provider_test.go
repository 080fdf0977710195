package identity

import "testing"

func TestUserIDIsMemoized(t *testing.T) {
	p := NewProvider("someone@example.com")

	first := p.UserID()
	for i := 0; i < 5; i++ {
		if got := p.UserID(); got != first {
			t.Fatalf("call %d returned %s, want %s", i, got, first)
		}
	}
}

func TestDefaultSourceMatchesKnownHash(t *testing.T) {
	p := NewProvider("")

	// md5("user@example.com")
	const want = "b58996c504c5638798eb6b511e6f49af"
	if got := p.UserID(); got != want {
		t.Fatalf("unexpected default identity: got %s want %s", got, want)
	}
}

func TestDifferentSourcesDiffer(t *testing.T) {
	a := NewProvider("a@example.com").UserID()
	b := NewProvider("b@example.com").UserID()
	if a == b {
		t.Fatal("expected distinct identities for distinct sources")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(a))
	}
}
