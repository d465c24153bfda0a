package dto

import (
	"encoding/hex"
	"time"

	"github.com/tonvault/backend/internal/models"
	"github.com/tonvault/backend/internal/ton"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

type KeyResponse struct {
	ID        int64     `json:"id"`
	PublicKey string    `json:"public_key"` // hex
	Name      string    `json:"name"`
	SignType  string    `json:"sign_type"`
	WatchOnly bool      `json:"watch_only"`
	CreatedAt time.Time `json:"created_at"`
}

func NewKeyResponse(k *models.Key) KeyResponse {
	return KeyResponse{
		ID:        k.ID,
		PublicKey: hex.EncodeToString(k.PublicKey),
		Name:      k.Name,
		SignType:  k.SignType,
		WatchOnly: k.WatchOnly(),
		CreatedAt: k.CreatedAt,
	}
}

// WalletResponse carries the resolved address in the two encodings clients
// actually render: friendly url-safe bounceable and raw.
type WalletResponse struct {
	ID          int64  `json:"id"`
	KeyID       int64  `json:"key_id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	SubwalletID int64  `json:"subwallet_id"`
	Address     string `json:"address"`
	AddressRaw  string `json:"address_raw"`
}

func NewWalletResponse(w *ton.DerivedWallet, testnet bool) WalletResponse {
	return WalletResponse{
		ID:          w.WalletID,
		KeyID:       w.KeyID,
		Type:        w.Type,
		Name:        w.Name,
		SubwalletID: w.SubwalletID,
		Address:     ton.FriendlyString(w.Address, ton.EncodingFlags{Bounceable: true, URLSafe: true, TestOnly: testnet}),
		AddressRaw:  ton.RawString(w.Address),
	}
}

func NewWalletResponses(wallets []ton.DerivedWallet, testnet bool) []WalletResponse {
	out := make([]WalletResponse, 0, len(wallets))
	for i := range wallets {
		out = append(out, NewWalletResponse(&wallets[i], testnet))
	}
	return out
}

type KeyWithWalletsResponse struct {
	KeyResponse
	Wallets []WalletResponse `json:"wallets"`
}

type AttemptResponse struct {
	ID                  string           `json:"id"`
	Identity            IdentityResponse `json:"identity"`
	State               string           `json:"state"`
	PreselectedKeyID    *int64           `json:"preselected_key_id,omitempty"`
	PreselectedWalletID *int64           `json:"preselected_wallet_id,omitempty"`
}

type IdentityResponse struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Host    string `json:"host"`
	IconURL string `json:"icon_url"`
}

// SessionResponse never exposes the ephemeral secret key.
type SessionResponse struct {
	ID        int64     `json:"id"`
	ClientID  string    `json:"client_id"`
	KeyID     int64     `json:"key_id"`
	WalletID  int64     `json:"wallet_id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	IconURL   string    `json:"icon_url"`
	CreatedAt time.Time `json:"created_at"`
}

func NewSessionResponse(s *models.ConnectSession) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		ClientID:  s.ClientID,
		KeyID:     s.KeyID,
		WalletID:  s.WalletID,
		Name:      s.Name,
		URL:       s.URL,
		IconURL:   s.IconURL,
		CreatedAt: s.CreatedAt,
	}
}
