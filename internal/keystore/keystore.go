// Package keystore encrypts key material at rest with a user password.
// Envelope: argon2id-derived AES-256 key, AES-GCM, random salt + nonce,
// everything packed into a single base64 blob stored in the keys table.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tonvault/backend/internal/models"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize  = 16
	nonceSize = 12
)

// Payload is the secret material protected by the envelope.
type Payload struct {
	Mnemonic []string `json:"mnemonic,omitempty"`
	Seed     []byte   `json:"seed"` // ed25519 seed, 32 bytes
}

// KeyPair expands the seed into a signing key pair.
func (p *Payload) KeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if len(p.Seed) != ed25519.SeedSize {
		return nil, nil, fmt.Errorf("invalid seed size: %d", len(p.Seed))
	}
	priv := ed25519.NewKeyFromSeed(p.Seed)
	return priv.Public().(ed25519.PublicKey), priv, nil
}

func deriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// Encrypt seals the payload under the password.
// Blob layout: salt(16) ++ nonce(12) ++ ciphertext, base64-encoded.
func Encrypt(password []byte, payload *Payload) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	blob := append(salt, nonce...)
	blob = append(blob, aesgcm.Seal(nil, nonce, plaintext, nil)...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt. A wrong password and a corrupted
// blob are indistinguishable; both come back as ErrBadPassword.
func Decrypt(password []byte, encrypted string) (*Payload, error) {
	blob, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, models.ErrBadPassword
	}
	if len(blob) < saltSize+nonceSize+1 {
		return nil, models.ErrBadPassword
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	ciphertext := blob[saltSize+nonceSize:]

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, models.ErrBadPassword
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, models.ErrBadPassword
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, models.ErrBadPassword
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, models.ErrBadPassword
	}
	return &payload, nil
}

// TON standard mnemonic-to-seed parameters.
const (
	mnemonicIterations = 100000
	mnemonicSalt       = "TON default seed"
)

// SeedFromMnemonic derives the ed25519 seed from a TON mnemonic phrase:
// HMAC-SHA512 over the joined words, then PBKDF2-SHA512 with the fixed salt.
func SeedFromMnemonic(words []string) []byte {
	mac := hmac.New(sha512.New, []byte(strings.Join(words, " ")))
	entropy := mac.Sum(nil)
	return pbkdf2.Key(entropy, []byte(mnemonicSalt), mnemonicIterations, ed25519.SeedSize, sha512.New)
}

// Wipe overwrites sensitive bytes after use.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
