package models

import "time"

// Signature schemes a key can use.
const (
	SignTypeTON        = "ton"
	SignTypeFireblocks = "fireblocks"
)

// Key — хранимый ключ подписи. PublicKey уникален и неизменяем.
// Encrypted == nil для watch-only ключей (нет секрета, только адреса).
type Key struct {
	ID        int64     `json:"id"`
	PublicKey []byte    `json:"public_key"` // ed25519, 32 bytes
	Encrypted *string   `json:"-"`          // argon2id + AES-GCM envelope, base64
	Name      string    `json:"name"`
	SignType  string    `json:"sign_type"` // ton / fireblocks
	CreatedAt time.Time `json:"created_at"`
}

// WatchOnly reports whether the key has no decryptable secret.
func (k *Key) WatchOnly() bool {
	return k.Encrypted == nil || *k.Encrypted == ""
}
