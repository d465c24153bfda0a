package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tonvault/backend/internal/models"
)

type LastSelectedRepo struct {
	pool *pgxpool.Pool
}

func NewLastSelectedRepo(pool *pgxpool.Pool) *LastSelectedRepo {
	return &LastSelectedRepo{pool: pool}
}

// Upsert remembers the chosen {key, wallet} pair for a dApp origin.
// At most one row per URL; repeats overwrite.
func (r *LastSelectedRepo) Upsert(ctx context.Context, url string, keyID, walletID int64) (*models.LastSelectedWallet, error) {
	var row models.LastSelectedWallet
	err := r.pool.QueryRow(ctx, `
		INSERT INTO last_selected_wallets (url, key_id, wallet_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (url) DO UPDATE SET
			key_id = EXCLUDED.key_id,
			wallet_id = EXCLUDED.wallet_id,
			updated_at = now()
		RETURNING url, key_id, wallet_id, updated_at
	`, url, keyID, walletID).Scan(&row.URL, &row.KeyID, &row.WalletID, &row.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Get returns the remembered choice for the origin. The stored ids are
// returned as-is even if the key/wallet have since been deleted: existence
// validation is the caller's job.
func (r *LastSelectedRepo) Get(ctx context.Context, url string) (*models.LastSelectedWallet, error) {
	var row models.LastSelectedWallet
	err := r.pool.QueryRow(ctx, `
		SELECT url, key_id, wallet_id, updated_at
		FROM last_selected_wallets WHERE url = $1
	`, url).Scan(&row.URL, &row.KeyID, &row.WalletID, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
