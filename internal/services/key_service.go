package services

import (
	"context"
	"fmt"

	"github.com/tonvault/backend/internal/events"
	"github.com/tonvault/backend/internal/keystore"
	"github.com/tonvault/backend/internal/models"
	"github.com/tonvault/backend/internal/repositories"
	"github.com/tonvault/backend/internal/walletindex"
	"go.uber.org/zap"
)

// KeyStore and WalletStore are the persistence surface the service needs;
// repositories.KeyRepo and repositories.WalletRepo satisfy them.
type KeyStore interface {
	Insert(ctx context.Context, k *models.Key) error
	UpdateName(ctx context.Context, id int64, name string) error
	DeleteCascade(ctx context.Context, keyID int64) error
}

type WalletStore interface {
	InsertMany(ctx context.Context, wallets []models.Wallet) ([]models.Wallet, error)
	UpdateName(ctx context.Context, id int64, name string) error
	CountActiveUses(ctx context.Context, walletID int64) (*repositories.ActiveUses, error)
	Delete(ctx context.Context, walletID int64) error
}

// KeyService owns every mutation of keys and wallets. After each successful
// mutation the in-memory index is reloaded and a wallets_updated event goes
// out so UI clients refresh.
type KeyService struct {
	keys      KeyStore
	wallets   WalletStore
	index     *walletindex.Index
	publisher events.Publisher
	log       *zap.Logger
}

func NewKeyService(
	keys KeyStore,
	wallets WalletStore,
	index *walletindex.Index,
	publisher events.Publisher,
	log *zap.Logger,
) *KeyService {
	return &KeyService{
		keys:      keys,
		wallets:   wallets,
		index:     index,
		publisher: publisher,
		log:       log,
	}
}

// NewWalletParams describes one wallet contract row to create. AddressOverride
// pins the row to a known address instead of deriving it from the public key.
type NewWalletParams struct {
	Type            string
	SubwalletID     *int64
	Name            *string
	AddressOverride *string
	WorkchainID     *int32
}

// ImportKey encrypts the secret under the password and stores the key with
// the given wallets, or a default v5R1 wallet when none are passed. A key
// with the same public key already present comes back as ErrKeyExists with
// nothing written.
func (s *KeyService) ImportKey(ctx context.Context, name string, password []byte, payload *keystore.Payload, wallets []NewWalletParams) (*models.Key, error) {
	pub, _, err := payload.KeyPair()
	if err != nil {
		return nil, fmt.Errorf("derive keypair: %w", err)
	}

	encrypted, err := keystore.Encrypt(password, payload)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret: %w", err)
	}

	key := &models.Key{
		PublicKey: pub,
		Encrypted: &encrypted,
		Name:      name,
		SignType:  models.SignTypeTON,
	}
	if err := s.keys.Insert(ctx, key); err != nil {
		return nil, err
	}

	if _, err := s.wallets.InsertMany(ctx, walletRows(key.ID, wallets)); err != nil {
		return nil, fmt.Errorf("create wallets: %w", err)
	}

	s.afterMutation(ctx, "key imported", zap.Int64("key_id", key.ID))
	return key, nil
}

// SaveWatchOnly stores a key without an encrypted secret. Such a key can be
// browsed and searched but never connects to a dApp.
func (s *KeyService) SaveWatchOnly(ctx context.Context, name string, publicKey []byte, wallets []NewWalletParams) (*models.Key, error) {
	key := &models.Key{
		PublicKey: publicKey,
		Name:      name,
		SignType:  models.SignTypeTON,
	}
	if err := s.keys.Insert(ctx, key); err != nil {
		return nil, err
	}

	if _, err := s.wallets.InsertMany(ctx, walletRows(key.ID, wallets)); err != nil {
		return nil, fmt.Errorf("create wallets: %w", err)
	}

	s.afterMutation(ctx, "watch-only key saved", zap.Int64("key_id", key.ID))
	return key, nil
}

// CreateWallet adds a wallet contract row under an existing key. Subwallet id
// defaults per contract version when the caller does not pass one.
func (s *KeyService) CreateWallet(ctx context.Context, keyID int64, params NewWalletParams) (*models.Wallet, error) {
	if _, ok := s.index.FindKey(keyID); !ok {
		return nil, models.ErrNotFound
	}

	inserted, err := s.wallets.InsertMany(ctx, []models.Wallet{walletRow(keyID, params)})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, "wallet created",
		zap.Int64("key_id", keyID),
		zap.Int64("wallet_id", inserted[0].ID),
		zap.String("type", params.Type),
	)
	return &inserted[0], nil
}

func (s *KeyService) RenameKey(ctx context.Context, keyID int64, name string) error {
	if err := s.keys.UpdateName(ctx, keyID, name); err != nil {
		return err
	}
	s.afterMutation(ctx, "key renamed", zap.Int64("key_id", keyID))
	return nil
}

func (s *KeyService) RenameWallet(ctx context.Context, walletID int64, name string) error {
	if err := s.wallets.UpdateName(ctx, walletID, name); err != nil {
		return err
	}
	s.afterMutation(ctx, "wallet renamed", zap.Int64("wallet_id", walletID))
	return nil
}

// DeleteWallet refuses while the wallet is referenced by a connect session or
// a pending connect-message transaction.
func (s *KeyService) DeleteWallet(ctx context.Context, walletID int64) error {
	uses, err := s.wallets.CountActiveUses(ctx, walletID)
	if err != nil {
		return err
	}
	if uses.SessionCount > 0 || uses.PendingTxCount > 0 {
		return fmt.Errorf("%w: %d sessions, %d pending transactions",
			models.ErrWalletInUse, uses.SessionCount, uses.PendingTxCount)
	}

	if err := s.wallets.Delete(ctx, walletID); err != nil {
		return err
	}
	s.afterMutation(ctx, "wallet deleted", zap.Int64("wallet_id", walletID))
	return nil
}

// DeleteKey removes the key and everything under it, sessions and pending
// transactions included. The destructive path: the UI confirms beforehand.
func (s *KeyService) DeleteKey(ctx context.Context, keyID int64) error {
	if _, ok := s.index.FindKey(keyID); !ok {
		return models.ErrNotFound
	}
	if err := s.keys.DeleteCascade(ctx, keyID); err != nil {
		return err
	}
	s.afterMutation(ctx, "key deleted", zap.Int64("key_id", keyID))
	return nil
}

// afterMutation reloads the index and notifies clients. Both are best-effort:
// the mutation itself is already committed.
func (s *KeyService) afterMutation(ctx context.Context, msg string, fields ...zap.Field) {
	s.log.Info(msg, fields...)

	if err := s.index.Reload(ctx); err != nil {
		s.log.Error("index reload failed after mutation", zap.Error(err))
	}
	if err := s.publisher.Publish(ctx, events.StreamWallet, events.Event{
		Type: events.EventWalletsUpdated,
	}); err != nil {
		s.log.Warn("failed to publish wallets_updated", zap.Error(err))
	}
}

// walletRows expands the requested wallet set, falling back to a single
// default v5R1 wallet when none were requested.
func walletRows(keyID int64, params []NewWalletParams) []models.Wallet {
	if len(params) == 0 {
		params = []NewWalletParams{{Type: models.WalletTypeV5R1}}
	}
	rows := make([]models.Wallet, 0, len(params))
	for _, p := range params {
		rows = append(rows, walletRow(keyID, p))
	}
	return rows
}

func walletRow(keyID int64, p NewWalletParams) models.Wallet {
	sub := defaultSubwalletID(p.Type)
	if p.SubwalletID != nil {
		sub = *p.SubwalletID
	}
	return models.Wallet{
		KeyID:         keyID,
		Type:          p.Type,
		SubwalletID:   sub,
		Name:          p.Name,
		WalletAddress: p.AddressOverride,
		WorkchainID:   p.WorkchainID,
	}
}

func defaultSubwalletID(walletType string) int64 {
	if walletType == models.WalletTypeV5R1 {
		return models.DefaultSubwalletIDV5R1
	}
	return models.DefaultSubwalletID
}
