package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tonvault/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// ListAll returns every wallet row, ordered by id so the index projection is
// stable across reloads.
func (r *WalletRepo) ListAll(ctx context.Context) ([]models.Wallet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, key_id, type, subwallet_id, name, wallet_address, workchain_id, extra_data, created_at
		FROM wallets ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWallets(rows)
}

func (r *WalletRepo) ListByKey(ctx context.Context, keyID int64) ([]models.Wallet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, key_id, type, subwallet_id, name, wallet_address, workchain_id, extra_data, created_at
		FROM wallets WHERE key_id = $1 ORDER BY id
	`, keyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWallets(rows)
}

func scanWallets(rows pgx.Rows) ([]models.Wallet, error) {
	var wallets []models.Wallet
	for rows.Next() {
		var w models.Wallet
		if err := rows.Scan(&w.ID, &w.KeyID, &w.Type, &w.SubwalletID, &w.Name,
			&w.WalletAddress, &w.WorkchainID, &w.ExtraData, &w.CreatedAt); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// InsertMany stores wallet rows and fills in generated ids.
func (r *WalletRepo) InsertMany(ctx context.Context, wallets []models.Wallet) ([]models.Wallet, error) {
	out := make([]models.Wallet, 0, len(wallets))
	for _, w := range wallets {
		err := r.pool.QueryRow(ctx, `
			INSERT INTO wallets (key_id, type, subwallet_id, name, wallet_address, workchain_id, extra_data)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at
		`, w.KeyID, w.Type, w.SubwalletID, w.Name, w.WalletAddress, w.WorkchainID, w.ExtraData,
		).Scan(&w.ID, &w.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (r *WalletRepo) UpdateName(ctx context.Context, id int64, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE wallets SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ActiveUses is the deletion-safety count for a wallet.
type ActiveUses struct {
	SessionCount   int64
	PendingTxCount int64
}

// CountActiveUses counts sessions bound to the wallet and connect-message
// transactions still pending (status = 0).
func (r *WalletRepo) CountActiveUses(ctx context.Context, walletID int64) (*ActiveUses, error) {
	var uses ActiveUses
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM connect_sessions WHERE wallet_id = $1),
			(SELECT count(*) FROM connect_message_transactions WHERE wallet_id = $1 AND status = $2)
	`, walletID, models.TxStatusPending).Scan(&uses.SessionCount, &uses.PendingTxCount)
	if err != nil {
		return nil, err
	}
	return &uses, nil
}

// Delete removes a wallet row together with its last-selected references.
// The caller is responsible for the in-use policy check.
func (r *WalletRepo) Delete(ctx context.Context, walletID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM last_selected_wallets WHERE wallet_id = $1`, walletID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM wallets WHERE id = $1`, walletID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return tx.Commit(ctx)
}

// --- Connect message transactions ---

func (r *WalletRepo) InsertTransaction(ctx context.Context, t *models.ConnectMessageTransaction) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO connect_message_transactions (key_id, wallet_id, status, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, t.KeyID, t.WalletID, t.Status, t.Payload).Scan(&t.ID, &t.CreatedAt)
}

func (r *WalletRepo) UpdateTransactionStatus(ctx context.Context, id int64, status int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE connect_message_transactions SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *WalletRepo) ListPendingTransactions(ctx context.Context, walletID int64) ([]models.ConnectMessageTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, key_id, wallet_id, status, payload, created_at
		FROM connect_message_transactions
		WHERE wallet_id = $1 AND status = $2
		ORDER BY id
	`, walletID, models.TxStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.ConnectMessageTransaction
	for rows.Next() {
		var t models.ConnectMessageTransaction
		if err := rows.Scan(&t.ID, &t.KeyID, &t.WalletID, &t.Status, &t.Payload, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
