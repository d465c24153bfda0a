package dto

type AuthRequest struct {
	Secret     string `json:"secret"`
	ClientName string `json:"client_name"`
}

type ImportKeyRequest struct {
	Name     string                `json:"name"`
	Password string                `json:"password"`
	Mnemonic []string              `json:"mnemonic,omitempty"`
	Seed     string                `json:"seed,omitempty"` // hex, 32 bytes
	Wallets  []CreateWalletRequest `json:"wallets,omitempty"`
}

type WatchOnlyRequest struct {
	Name      string                `json:"name"`
	PublicKey string                `json:"public_key"` // hex, 32 bytes
	Wallets   []CreateWalletRequest `json:"wallets,omitempty"`
}

type CreateWalletRequest struct {
	Type        string  `json:"type"` // v3R2 / v4R2 / v5R1
	SubwalletID *int64  `json:"subwallet_id,omitempty"`
	Name        *string `json:"name,omitempty"`
	Address     *string `json:"address,omitempty"` // pin to a known address instead of deriving
	WorkchainID *int32  `json:"workchain_id,omitempty"`
}

type RenameRequest struct {
	Name string `json:"name"`
}

type ConnectOpenRequest struct {
	Link string `json:"link"`
}

type ConnectApproveRequest struct {
	KeyID    int64  `json:"key_id"`
	WalletID int64  `json:"wallet_id"`
	Password string `json:"password"`
}
