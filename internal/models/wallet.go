package models

import "time"

// Wallet contract variants derived from one key.
const (
	WalletTypeV3R2 = "v3R2"
	WalletTypeV4R2 = "v4R2"
	WalletTypeV5R1 = "v5R1"
)

// Default subwallet ids used when the user does not pick one explicitly.
const (
	DefaultSubwalletID     = 698983191
	DefaultSubwalletIDV5R1 = 2147483409
)

// Wallet — вариант контракта, привязанный к ключу. Несколько строк на один
// ключ: разные версии контракта и subwallet id от одного public key.
// (KeyID, Type, SubwalletID) уникальна на практике, но не энфорсится в БД.
type Wallet struct {
	ID            int64     `json:"id"`
	KeyID         int64     `json:"key_id"`
	Type          string    `json:"type"` // v3R2 / v4R2 / v5R1
	SubwalletID   int64     `json:"subwallet_id"`
	Name          *string   `json:"name,omitempty"`
	WalletAddress *string   `json:"wallet_address,omitempty"` // explicit override, friendly or raw form
	WorkchainID   *int32    `json:"workchain_id,omitempty"`
	ExtraData     *string   `json:"extra_data,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DisplayName returns the user-visible label: explicit name or the contract type.
func (w *Wallet) DisplayName() string {
	if w.Name != nil && *w.Name != "" {
		return *w.Name
	}
	return w.Type
}

// KeyWithWallets is the read-model row served by the wallet index:
// a key together with all wallet rows derived from it.
type KeyWithWallets struct {
	Key     Key      `json:"key"`
	Wallets []Wallet `json:"wallets"`
}
