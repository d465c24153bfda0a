package handlers

import (
	"encoding/hex"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/tonvault/backend/internal/http/dto"
	"github.com/tonvault/backend/internal/keystore"
	"github.com/tonvault/backend/internal/models"
	"github.com/tonvault/backend/internal/services"
	"github.com/tonvault/backend/internal/walletindex"
	"go.uber.org/zap"
)

type KeyHandler struct {
	service *services.KeyService
	index   *walletindex.Index
	testnet bool
	log     *zap.Logger
}

func NewKeyHandler(service *services.KeyService, index *walletindex.Index, network string, log *zap.Logger) *KeyHandler {
	return &KeyHandler{
		service: service,
		index:   index,
		testnet: network == "testnet",
		log:     log,
	}
}

// ListKeys returns keys matching the query, each with its resolved wallets.
// A key whose wallets fail to derive is returned without wallet rows rather
// than breaking the whole listing.
func (h *KeyHandler) ListKeys(c *fiber.Ctx) error {
	matched := h.index.Search(c.Query("q"))
	out := make([]dto.KeyWithWalletsResponse, 0, len(matched))
	for _, kw := range matched {
		item := dto.KeyWithWalletsResponse{KeyResponse: dto.NewKeyResponse(&kw.Key)}
		derived, err := h.index.WalletsOf(kw.Key.ID)
		if err != nil {
			h.log.Warn("wallet derivation failed", zap.Int64("key_id", kw.Key.ID), zap.Error(err))
		} else {
			item.Wallets = dto.NewWalletResponses(derived, h.testnet)
		}
		out = append(out, item)
	}
	return c.JSON(out)
}

func (h *KeyHandler) GetKey(c *fiber.Ctx) error {
	keyID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid key id"})
	}

	kw, ok := h.index.FindKey(int64(keyID))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "key not found"})
	}

	item := dto.KeyWithWalletsResponse{KeyResponse: dto.NewKeyResponse(&kw.Key)}
	derived, err := h.index.WalletsOf(kw.Key.ID)
	if err != nil {
		h.log.Warn("wallet derivation failed", zap.Int64("key_id", kw.Key.ID), zap.Error(err))
	} else {
		item.Wallets = dto.NewWalletResponses(derived, h.testnet)
	}
	return c.JSON(item)
}

// ListWallets resolves the wallets of one key, optionally narrowed by a query.
// A query with zero matches falls back to the full list.
func (h *KeyHandler) ListWallets(c *fiber.Ctx) error {
	keyID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid key id"})
	}

	derived, err := h.index.WalletsOf(int64(keyID))
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "key not found"})
	}
	if err != nil {
		h.log.Error("wallet derivation failed", zap.Int64("key_id", int64(keyID)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to resolve wallets"})
	}

	derived = walletindex.FilterWallets(derived, c.Query("q"))
	return c.JSON(dto.NewWalletResponses(derived, h.testnet))
}

func (h *KeyHandler) ImportKey(c *fiber.Ctx) error {
	var req dto.ImportKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "password is required"})
	}

	payload, err := buildPayload(&req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	wallets, err := walletParams(req.Wallets)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	key, err := h.service.ImportKey(c.Context(), req.Name, []byte(req.Password), payload, wallets)
	if errors.Is(err, models.ErrKeyExists) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "key already exists"})
	}
	if err != nil {
		h.log.Error("key import failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.NewKeyResponse(key))
}

// walletParams validates requested wallet rows and maps them to the service
// type. An empty request list means "use the default wallet".
func walletParams(reqs []dto.CreateWalletRequest) ([]services.NewWalletParams, error) {
	out := make([]services.NewWalletParams, 0, len(reqs))
	for _, r := range reqs {
		switch r.Type {
		case models.WalletTypeV3R2, models.WalletTypeV4R2, models.WalletTypeV5R1:
		default:
			return nil, errors.New("unknown wallet type")
		}
		out = append(out, services.NewWalletParams{
			Type:            r.Type,
			SubwalletID:     r.SubwalletID,
			Name:            r.Name,
			AddressOverride: r.Address,
			WorkchainID:     r.WorkchainID,
		})
	}
	return out, nil
}

func buildPayload(req *dto.ImportKeyRequest) (*keystore.Payload, error) {
	if len(req.Mnemonic) > 0 {
		return &keystore.Payload{
			Mnemonic: req.Mnemonic,
			Seed:     keystore.SeedFromMnemonic(req.Mnemonic),
		}, nil
	}

	seed, err := hex.DecodeString(req.Seed)
	if err != nil || len(seed) != 32 {
		return nil, errors.New("mnemonic or a 32-byte hex seed is required")
	}
	return &keystore.Payload{Seed: seed}, nil
}

func (h *KeyHandler) SaveWatchOnly(c *fiber.Ctx) error {
	var req dto.WatchOnlyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	pub, err := hex.DecodeString(req.PublicKey)
	if err != nil || len(pub) != 32 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "public_key must be 32 bytes hex"})
	}

	wallets, err := walletParams(req.Wallets)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	key, err := h.service.SaveWatchOnly(c.Context(), req.Name, pub, wallets)
	if errors.Is(err, models.ErrKeyExists) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "key already exists"})
	}
	if err != nil {
		h.log.Error("watch-only save failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.NewKeyResponse(key))
}

func (h *KeyHandler) CreateWallet(c *fiber.Ctx) error {
	keyID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid key id"})
	}

	var req dto.CreateWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	params, err := walletParams([]dto.CreateWalletRequest{req})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	wallet, err := h.service.CreateWallet(c.Context(), int64(keyID), params[0])
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "key not found"})
	}
	if err != nil {
		h.log.Error("wallet create failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.Status(fiber.StatusCreated).JSON(wallet)
}

func (h *KeyHandler) RenameKey(c *fiber.Ctx) error {
	keyID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid key id"})
	}
	return h.rename(c, func(name string) error {
		return h.service.RenameKey(c.Context(), int64(keyID), name)
	})
}

func (h *KeyHandler) RenameWallet(c *fiber.Ctx) error {
	walletID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid wallet id"})
	}
	return h.rename(c, func(name string) error {
		return h.service.RenameWallet(c.Context(), int64(walletID), name)
	})
}

func (h *KeyHandler) rename(c *fiber.Ctx, apply func(string) error) error {
	var req dto.RenameRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	err := apply(req.Name)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "not found"})
	}
	if err != nil {
		h.log.Error("rename failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *KeyHandler) DeleteKey(c *fiber.Ctx) error {
	keyID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid key id"})
	}

	err = h.service.DeleteKey(c.Context(), int64(keyID))
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "key not found"})
	}
	if err != nil {
		h.log.Error("key delete failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *KeyHandler) DeleteWallet(c *fiber.Ctx) error {
	walletID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid wallet id"})
	}

	err = h.service.DeleteWallet(c.Context(), int64(walletID))
	if errors.Is(err, models.ErrWalletInUse) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "wallet not found"})
	}
	if err != nil {
		h.log.Error("wallet delete failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
