package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tonvault/backend/internal/models"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// Upsert stores a connect session. One session per dApp client id: re-accepting
// a connect request from the same client replaces the previous binding.
func (r *SessionRepo) Upsert(ctx context.Context, s *models.ConnectSession) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO connect_sessions (secret_key, public_key, client_id, key_id, wallet_id, icon_url, name, url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (client_id) DO UPDATE SET
			secret_key = EXCLUDED.secret_key,
			public_key = EXCLUDED.public_key,
			key_id = EXCLUDED.key_id,
			wallet_id = EXCLUDED.wallet_id,
			icon_url = EXCLUDED.icon_url,
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			created_at = now()
		RETURNING id, created_at
	`, s.SecretKey, s.PublicKey, s.ClientID, s.KeyID, s.WalletID, s.IconURL, s.Name, s.URL,
	).Scan(&s.ID, &s.CreatedAt)
}

func (r *SessionRepo) GetByClientID(ctx context.Context, clientID string) (*models.ConnectSession, error) {
	var s models.ConnectSession
	err := r.pool.QueryRow(ctx, `
		SELECT id, secret_key, public_key, client_id, key_id, wallet_id, icon_url, name, url, created_at
		FROM connect_sessions WHERE client_id = $1
	`, clientID).Scan(&s.ID, &s.SecretKey, &s.PublicKey, &s.ClientID, &s.KeyID, &s.WalletID,
		&s.IconURL, &s.Name, &s.URL, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) List(ctx context.Context) ([]models.ConnectSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, secret_key, public_key, client_id, key_id, wallet_id, icon_url, name, url, created_at
		FROM connect_sessions ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.ConnectSession
	for rows.Next() {
		var s models.ConnectSession
		if err := rows.Scan(&s.ID, &s.SecretKey, &s.PublicKey, &s.ClientID, &s.KeyID, &s.WalletID,
			&s.IconURL, &s.Name, &s.URL, &s.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM connect_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
