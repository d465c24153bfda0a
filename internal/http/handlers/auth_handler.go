package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/tonvault/backend/internal/auth"
	"github.com/tonvault/backend/internal/config"
	"github.com/tonvault/backend/internal/http/dto"
	"go.uber.org/zap"
)

type AuthHandler struct {
	cfg *config.Config
	log *zap.Logger
}

func NewAuthHandler(cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, log: log}
}

// Login exchanges the shared API secret for a JWT. The daemon is local and
// single-user; the token only binds subsequent REST/WS calls to one client.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.AuthRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	if h.cfg.APISecret != "" {
		if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.cfg.APISecret)) != 1 {
			h.log.Debug("auth rejected: bad api secret")
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid secret"})
		}
	}

	clientName := req.ClientName
	if clientName == "" {
		clientName = "ui"
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, clientName, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.JSON(dto.AuthResponse{Token: token})
}
