package errors

import "testing"

func TestWithKindIsMatchesKind(t *testing.T) {
	base := New("container missing")
	err := WithKind(base, IO)

	if !Is(err, IO) {
		t.Fatal("expected errors.Is(err, IO) to be true")
	}
	if Is(err, Corrupt) {
		t.Fatal("expected errors.Is(err, Corrupt) to be false")
	}
}

func TestWithKindPreservesMessage(t *testing.T) {
	err := WithKind(New("boom"), NotFound)
	want := "not found: boom"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWithKindNil(t *testing.T) {
	if WithKind(nil, IO) != nil {
		t.Fatal("WithKind(nil, ...) should return nil")
	}
}

func TestFatalError(t *testing.T) {
	var err error = Fatal("bad mountpoint")
	if err.Error() != "bad mountpoint" {
		t.Fatalf("unexpected Fatal message: %v", err)
	}
}
