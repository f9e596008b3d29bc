package digest

import "testing"

func TestOfKnownVector(t *testing.T) {
	// sha256("") per FIPS 180-4 test vectors.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	got := Of(nil)
	if got != want {
		t.Fatalf("Of(nil) = %s, want %s", got, want)
	}
}

func TestOfDeterministic(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	if Of(data) != Of(data) {
		t.Fatal("Of is not deterministic")
	}
}

func TestOfDistinguishesInput(t *testing.T) {
	if Of([]byte("a")) == Of([]byte("b")) {
		t.Fatal("different inputs produced the same digest")
	}
}

func TestValid(t *testing.T) {
	if !Valid(Of([]byte("x"))) {
		t.Fatal("Of output rejected by Valid")
	}
	if Valid("not-hex-and-wrong-length") {
		t.Fatal("Valid accepted garbage")
	}
	if Valid("") {
		t.Fatal("Valid accepted empty string")
	}
}
