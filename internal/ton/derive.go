package ton

import (
	"crypto/ed25519"
	"fmt"

	"github.com/tonvault/backend/internal/models"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/ton/wallet"
)

// DerivedWallet is a wallet row resolved to a concrete on-chain address.
type DerivedWallet struct {
	WalletID    int64
	KeyID       int64
	Type        string
	Name        string
	SubwalletID int64
	Address     *address.Address
}

// Deriver resolves stored wallet rows into addresses. It only depends on the
// contract code shipped with tonutils-go, no network access.
type Deriver struct {
	testnet bool
}

func NewDeriver(network string) *Deriver {
	return &Deriver{testnet: network != "mainnet"}
}

// Derive resolves a wallet row: the explicit address override wins, otherwise
// the address is computed from the key's public key + contract version +
// subwallet id. Unknown contract versions are an error, not a skip.
func (d *Deriver) Derive(key *models.Key, w *models.Wallet) (*DerivedWallet, error) {
	addr, err := d.resolveAddress(key, w)
	if err != nil {
		return nil, fmt.Errorf("derive wallet %d (%s): %w", w.ID, w.Type, err)
	}

	return &DerivedWallet{
		WalletID:    w.ID,
		KeyID:       key.ID,
		Type:        w.Type,
		Name:        w.DisplayName(),
		SubwalletID: w.SubwalletID,
		Address:     addr,
	}, nil
}

func (d *Deriver) resolveAddress(key *models.Key, w *models.Wallet) (*address.Address, error) {
	if w.WalletAddress != nil && *w.WalletAddress != "" {
		return ParseAny(*w.WalletAddress)
	}

	if len(key.PublicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: %d", len(key.PublicKey))
	}

	version, err := d.versionConfig(w.Type)
	if err != nil {
		return nil, err
	}

	addr, err := wallet.AddressFromPubKey(ed25519.PublicKey(key.PublicKey), version, uint32(w.SubwalletID))
	if err != nil {
		return nil, err
	}

	if w.WorkchainID != nil && *w.WorkchainID != addr.Workchain() {
		addr = address.NewAddress(0, byte(*w.WorkchainID), addr.Data())
	}
	return addr, nil
}

func (d *Deriver) versionConfig(walletType string) (wallet.VersionConfig, error) {
	switch walletType {
	case models.WalletTypeV3R2:
		return wallet.V3R2, nil
	case models.WalletTypeV4R2:
		return wallet.V4R2, nil
	case models.WalletTypeV5R1:
		globalID := int32(wallet.MainnetGlobalID)
		if d.testnet {
			globalID = wallet.TestnetGlobalID
		}
		return wallet.ConfigV5R1Final{NetworkGlobalID: globalID}, nil
	default:
		return nil, fmt.Errorf("unsupported wallet type %q", walletType)
	}
}
