package models

import "time"

// ConnectSession — привязка эфемерной X25519 пары к выбранному ключу/кошельку
// для одного dApp-подключения. SecretKey никогда не покидает процесс.
// Одна сессия на client id: повторный connect от того же dApp заменяет строку.
type ConnectSession struct {
	ID        int64     `json:"id"`
	SecretKey []byte    `json:"-"`          // ephemeral X25519 secret, 32 bytes
	PublicKey []byte    `json:"public_key"` // ephemeral X25519 public, 32 bytes
	ClientID  string    `json:"client_id"`  // requester client id from the connect link
	KeyID     int64     `json:"key_id"`
	WalletID  int64     `json:"wallet_id"`
	IconURL   string    `json:"icon_url"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// LastSelectedWallet remembers the most recent {key, wallet} choice per dApp
// origin so reconnection is one click. One row per URL.
type LastSelectedWallet struct {
	URL       string    `json:"url"`
	KeyID     int64     `json:"key_id"`
	WalletID  int64     `json:"wallet_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Connect message transaction statuses.
const (
	TxStatusPending = 0
	TxStatusDone    = 1
	TxStatusFailed  = 2
)

// ConnectMessageTransaction — исходящая транзакция, запрошенная dApp через
// bridge. Кошелёк с pending-транзакцией удалять нельзя.
type ConnectMessageTransaction struct {
	ID        int64     `json:"id"`
	KeyID     int64     `json:"key_id"`
	WalletID  int64     `json:"wallet_id"`
	Status    int       `json:"status"` // 0 pending, 1 done, 2 failed
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Pending reports whether the transaction still blocks wallet deletion.
func (t *ConnectMessageTransaction) Pending() bool {
	return t.Status == TxStatusPending
}
