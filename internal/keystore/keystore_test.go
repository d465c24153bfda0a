package keystore

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/tonvault/backend/internal/models"
)

func testPayload(t *testing.T) *Payload {
	t.Helper()
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatal(err)
	}
	return &Payload{Seed: seed, Mnemonic: []string{"abandon", "ability", "able"}}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	payload := testPayload(t)

	blob, err := Encrypt([]byte("correct horse"), payload)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Decrypt([]byte("correct horse"), blob)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Seed) != string(payload.Seed) {
		t.Error("seed mismatch after round-trip")
	}
	if len(got.Mnemonic) != 3 || got.Mnemonic[0] != "abandon" {
		t.Errorf("mnemonic mismatch: %v", got.Mnemonic)
	}
}

func TestDecrypt_WrongPassword(t *testing.T) {
	blob, err := Encrypt([]byte("right"), testPayload(t))
	if err != nil {
		t.Fatal(err)
	}

	_, err = Decrypt([]byte("wrong"), blob)
	if !errors.Is(err, models.ErrBadPassword) {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}
}

func TestDecrypt_CorruptBlob(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"too short", "AAAA"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt([]byte("pw"), tt.blob); !errors.Is(err, models.ErrBadPassword) {
				t.Fatalf("expected ErrBadPassword, got %v", err)
			}
		})
	}
}

func TestEncrypt_UniqueBlobs(t *testing.T) {
	payload := testPayload(t)
	b1, err := Encrypt([]byte("pw"), payload)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := Encrypt([]byte("pw"), payload)
	if err != nil {
		t.Fatal(err)
	}
	if b1 == b2 {
		t.Error("two encryptions produced identical blobs (salt/nonce reuse)")
	}
}

func TestPayload_KeyPair(t *testing.T) {
	payload := testPayload(t)
	pub, priv, err := payload.KeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if len(pub) != 32 || len(priv) != 64 {
		t.Errorf("unexpected key sizes: pub=%d priv=%d", len(pub), len(priv))
	}

	bad := &Payload{Seed: []byte{1, 2, 3}}
	if _, _, err := bad.KeyPair(); err == nil {
		t.Fatal("expected error for short seed")
	}
}

func TestSeedFromMnemonic(t *testing.T) {
	words := []string{"abandon", "ability", "able", "about", "above", "absent"}

	seed := SeedFromMnemonic(words)
	if len(seed) != 32 {
		t.Fatalf("seed length = %d", len(seed))
	}

	// Deterministic for the same phrase.
	if !bytes.Equal(seed, SeedFromMnemonic(words)) {
		t.Error("derivation must be deterministic")
	}

	other := SeedFromMnemonic([]string{"zebra", "zoo", "zone"})
	if bytes.Equal(seed, other) {
		t.Error("different phrases must give different seeds")
	}
}
