package tonconnect

import (
	"context"

	"github.com/tonvault/backend/internal/models"
	"go.uber.org/zap"
)

type LastChoiceStore interface {
	Upsert(ctx context.Context, url string, keyID, walletID int64) (*models.LastSelectedWallet, error)
	Get(ctx context.Context, url string) (*models.LastSelectedWallet, error)
}

// LastChoiceMemory remembers the last {key, wallet} chosen per dApp origin so
// reconnecting is one click.
type LastChoiceMemory struct {
	store LastChoiceStore
	log   *zap.Logger
}

func NewLastChoiceMemory(store LastChoiceStore, log *zap.Logger) *LastChoiceMemory {
	return &LastChoiceMemory{store: store, log: log}
}

// Remember upserts the choice, keyed by origin. Idempotent.
func (m *LastChoiceMemory) Remember(ctx context.Context, url string, keyID, walletID int64) error {
	if url == "" {
		return nil
	}
	_, err := m.store.Upsert(ctx, url, keyID, walletID)
	return err
}

// Recall returns the stored ids for the origin, or ErrNotFound. The ids may
// reference a key/wallet deleted since: validating existence is the caller's
// responsibility.
func (m *LastChoiceMemory) Recall(ctx context.Context, url string) (*models.LastSelectedWallet, error) {
	if url == "" {
		return nil, models.ErrNotFound
	}
	return m.store.Get(ctx, url)
}
