package internal

import (
	"errors"
	"testing"
)

func TestNewResetTokenShape(t *testing.T) {
	a, err := NewResetToken()
	if err != nil {
		t.Fatalf("NewResetToken: %v", err)
	}
	b, _ := NewResetToken()
	if len(a) != 64 || a == b {
		t.Fatalf("expected distinct 64-char tokens, got %q %q", a, b)
	}
	if _, err := ParseResetToken(a); err != nil {
		t.Fatalf("issued token must parse: %v", err)
	}
}

func TestParseResetTokenRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "short", "zz" + a64()[2:]} {
		if _, err := ParseResetToken(in); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("expected ErrMalformedToken for %q, got %v", in, err)
		}
	}
}

func TestHashTokenKnownVector(t *testing.T) {
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashToken("abc"); got != want {
		t.Fatalf("unexpected sha256: %s", got)
	}
}

func a64() string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
