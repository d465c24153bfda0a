// Package walletindex keeps a read-mostly in-memory projection of persisted
// keys and their wallets. The projection is rebuilt wholesale after every
// mutation: a single writer swaps in a fresh snapshot, readers see either
// the fully-old or fully-new one.
package walletindex

import (
	"context"
	"strings"
	"sync"

	"github.com/tonvault/backend/internal/models"
	"github.com/tonvault/backend/internal/ton"
	"go.uber.org/zap"
)

type KeySource interface {
	List(ctx context.Context) ([]models.Key, error)
}

type WalletSource interface {
	ListAll(ctx context.Context) ([]models.Wallet, error)
}

type Index struct {
	keys    KeySource
	wallets WalletSource
	deriver *ton.Deriver
	log     *zap.Logger

	mu       sync.RWMutex
	snapshot []models.KeyWithWallets
}

func New(keys KeySource, wallets WalletSource, deriver *ton.Deriver, log *zap.Logger) *Index {
	return &Index{keys: keys, wallets: wallets, deriver: deriver, log: log}
}

// Reload rebuilds the projection from the store and publishes it atomically.
func (i *Index) Reload(ctx context.Context) error {
	keys, err := i.keys.List(ctx)
	if err != nil {
		return err
	}
	wallets, err := i.wallets.ListAll(ctx)
	if err != nil {
		return err
	}

	byKey := make(map[int64][]models.Wallet, len(keys))
	for _, w := range wallets {
		byKey[w.KeyID] = append(byKey[w.KeyID], w)
	}

	next := make([]models.KeyWithWallets, 0, len(keys))
	for _, k := range keys {
		next = append(next, models.KeyWithWallets{Key: k, Wallets: byKey[k.ID]})
	}

	i.mu.Lock()
	i.snapshot = next
	i.mu.Unlock()

	i.log.Debug("wallet index reloaded", zap.Int("keys", len(keys)), zap.Int("wallets", len(wallets)))
	return nil
}

// Snapshot returns the current projection. The slice must not be mutated.
func (i *Index) Snapshot() []models.KeyWithWallets {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.snapshot
}

// ListKeys returns keys in id order, stable across reloads unless the
// underlying data changed.
func (i *Index) ListKeys() []models.Key {
	snap := i.Snapshot()
	keys := make([]models.Key, 0, len(snap))
	for _, kw := range snap {
		keys = append(keys, kw.Key)
	}
	return keys
}

func (i *Index) FindKey(keyID int64) (*models.KeyWithWallets, bool) {
	for _, kw := range i.Snapshot() {
		if kw.Key.ID == keyID {
			return &kw, true
		}
	}
	return nil, false
}

func (i *Index) FindWallet(keyID, walletID int64) (*models.Wallet, bool) {
	kw, ok := i.FindKey(keyID)
	if !ok {
		return nil, false
	}
	for _, w := range kw.Wallets {
		if w.ID == walletID {
			return &w, true
		}
	}
	return nil, false
}

// Search filters keys by free text: a key matches when its name contains the
// query or any of its wallets matches by name, contract type, or any canonical
// address encoding. Empty query returns the full list. A wallet that fails to
// derive simply does not match; search never fails as a whole.
func (i *Index) Search(query string) []models.KeyWithWallets {
	snap := i.Snapshot()
	if query == "" {
		return snap
	}

	q := strings.ToLower(query)
	var matched []models.KeyWithWallets
	for _, kw := range snap {
		if strings.Contains(strings.ToLower(kw.Key.Name), q) {
			matched = append(matched, kw)
			continue
		}
		for _, w := range kw.Wallets {
			if i.walletMatches(&kw.Key, &w, q) {
				matched = append(matched, kw)
				break
			}
		}
	}
	return matched
}

func (i *Index) walletMatches(key *models.Key, w *models.Wallet, q string) bool {
	if strings.Contains(strings.ToLower(w.Type), q) {
		return true
	}
	if strings.Contains(strings.ToLower(w.DisplayName()), q) {
		return true
	}
	dw, err := i.deriver.Derive(key, w)
	if err != nil {
		return false // fail closed for matching, surfaced separately in WalletsOf
	}
	return ton.MatchesQuery(dw.Address, q)
}

// WalletsOf resolves every wallet of a key into a concrete address. One bad
// row fails this key's listing; wallets of other keys are unaffected because
// the caller asks per key.
func (i *Index) WalletsOf(keyID int64) ([]ton.DerivedWallet, error) {
	kw, ok := i.FindKey(keyID)
	if !ok {
		return nil, models.ErrNotFound
	}

	derived := make([]ton.DerivedWallet, 0, len(kw.Wallets))
	for _, w := range kw.Wallets {
		dw, err := i.deriver.Derive(&kw.Key, &w)
		if err != nil {
			return nil, err
		}
		derived = append(derived, *dw)
	}
	return derived, nil
}

// FilterWallets narrows an already-derived wallet list by the query. Zero
// matches fall back to the full list: a too-narrow query must not hide the
// chosen key's wallets entirely.
func FilterWallets(wallets []ton.DerivedWallet, query string) []ton.DerivedWallet {
	if query == "" {
		return wallets
	}

	q := strings.ToLower(query)
	var filtered []ton.DerivedWallet
	for _, w := range wallets {
		if strings.Contains(strings.ToLower(w.Type), q) ||
			strings.Contains(strings.ToLower(w.Name), q) ||
			ton.MatchesQuery(w.Address, q) {
			filtered = append(filtered, w)
		}
	}

	if len(filtered) == 0 {
		return wallets
	}
	return filtered
}
