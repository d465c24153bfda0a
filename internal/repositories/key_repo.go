package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tonvault/backend/internal/models"
)

type KeyRepo struct {
	pool *pgxpool.Pool
}

func NewKeyRepo(pool *pgxpool.Pool) *KeyRepo {
	return &KeyRepo{pool: pool}
}

// List returns all keys in insertion order.
func (r *KeyRepo) List(ctx context.Context) ([]models.Key, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, public_key, encrypted, name, sign_type, created_at
		FROM keys ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []models.Key
	for rows.Next() {
		var k models.Key
		if err := rows.Scan(&k.ID, &k.PublicKey, &k.Encrypted, &k.Name, &k.SignType, &k.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *KeyRepo) GetByID(ctx context.Context, id int64) (*models.Key, error) {
	var k models.Key
	err := r.pool.QueryRow(ctx, `
		SELECT id, public_key, encrypted, name, sign_type, created_at
		FROM keys WHERE id = $1
	`, id).Scan(&k.ID, &k.PublicKey, &k.Encrypted, &k.Name, &k.SignType, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// Insert stores a new key. A duplicate public key comes back as ErrKeyExists.
func (r *KeyRepo) Insert(ctx context.Context, k *models.Key) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO keys (public_key, encrypted, name, sign_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, k.PublicKey, k.Encrypted, k.Name, k.SignType).Scan(&k.ID, &k.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return models.ErrKeyExists
	}
	return err
}

func (r *KeyRepo) UpdateName(ctx context.Context, id int64, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE keys SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteCascade removes a key and every dependent row in a single transaction:
// child tables first so a crash cannot leave orphans.
func (r *KeyRepo) DeleteCascade(ctx context.Context, keyID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	statements := []string{
		`DELETE FROM connect_message_transactions WHERE key_id = $1`,
		`DELETE FROM connect_sessions WHERE key_id = $1`,
		`DELETE FROM last_selected_wallets WHERE key_id = $1`,
		`DELETE FROM wallets WHERE key_id = $1`,
		`DELETE FROM keys WHERE id = $1`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt, keyID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
