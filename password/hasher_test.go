package password

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestChain(t *testing.T) (*Chain, *Bcrypt) {
	t.Helper()
	a, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	b, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	return NewChain(a, b), b
}

func TestChainHashesWithPrimary(t *testing.T) {
	chain, _ := newTestChain(t)
	hash, err := chain.Hash("chain-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if hash[:10] != "$argon2id$" {
		t.Fatalf("expected argon2id hash, got %s", hash)
	}
	ok, err := chain.Verify("chain-password", hash)
	if err != nil || !ok {
		t.Fatalf("expected verify to succeed, ok=%v err=%v", ok, err)
	}
	upgrade, err := chain.NeedsUpgrade(hash)
	if err != nil || upgrade {
		t.Fatalf("expected no upgrade for primary hash, got %v %v", upgrade, err)
	}
}

func TestChainVerifiesLegacyBcrypt(t *testing.T) {
	chain, legacy := newTestChain(t)
	hash, err := legacy.Hash("legacy-password")
	if err != nil {
		t.Fatalf("bcrypt Hash error: %v", err)
	}

	ok, err := chain.Verify("legacy-password", hash)
	if err != nil || !ok {
		t.Fatalf("expected legacy verify to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = chain.Verify("wrong-password", hash)
	if err != nil || ok {
		t.Fatalf("expected legacy mismatch, ok=%v err=%v", ok, err)
	}
	upgrade, err := chain.NeedsUpgrade(hash)
	if err != nil || !upgrade {
		t.Fatalf("expected legacy hash to need upgrade, got %v %v", upgrade, err)
	}
}

func TestChainUnknownFormat(t *testing.T) {
	chain, _ := newTestChain(t)
	if _, err := chain.Verify("x", "plaintext"); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("expected ErrUnsupportedHash, got %v", err)
	}
}

func TestBcryptMalformed(t *testing.T) {
	b, _ := NewBcrypt(bcrypt.MinCost)
	if _, err := b.Verify("x", "$2a$garbage"); !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("expected ErrMalformedHash, got %v", err)
	}
	if _, err := NewBcrypt(1); err == nil {
		t.Fatal("expected invalid cost to be rejected")
	}
}
