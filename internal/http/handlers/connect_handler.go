package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/tonvault/backend/internal/events"
	"github.com/tonvault/backend/internal/http/dto"
	"github.com/tonvault/backend/internal/models"
	"github.com/tonvault/backend/internal/repositories"
	"github.com/tonvault/backend/internal/tonconnect"
	"go.uber.org/zap"
)

type ConnectHandler struct {
	establisher *tonconnect.Establisher
	sessions    *repositories.SessionRepo
	publisher   events.Publisher
	log         *zap.Logger
}

func NewConnectHandler(
	establisher *tonconnect.Establisher,
	sessions *repositories.SessionRepo,
	publisher events.Publisher,
	log *zap.Logger,
) *ConnectHandler {
	return &ConnectHandler{
		establisher: establisher,
		sessions:    sessions,
		publisher:   publisher,
		log:         log,
	}
}

// Open parses a tonconnect link and resolves the dApp identity. The attempt
// waits for the user's key/wallet selection until approved or closed.
func (h *ConnectHandler) Open(c *fiber.Ctx) error {
	var req dto.ConnectOpenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	attempt, err := h.establisher.Open(c.Context(), req.Link)
	if errors.Is(err, models.ErrBadLink) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "malformed tonconnect link"})
	}
	if err != nil {
		h.log.Error("connect open failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	h.publish(c, events.EventConnectRequestOpened, map[string]any{
		"attempt_id": attempt.ID,
		"dapp":       attempt.Identity.Name,
	})
	return c.JSON(attemptResponse(attempt))
}

func (h *ConnectHandler) GetAttempt(c *fiber.Ctx) error {
	attempt, ok := h.establisher.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "attempt not found"})
	}
	return c.JSON(attemptResponse(attempt))
}

// Approve completes the attempt with the chosen key/wallet and password.
// A wrong password comes back as 401 with the attempt still open for retry.
func (h *ConnectHandler) Approve(c *fiber.Ctx) error {
	var req dto.ConnectApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	session, err := h.establisher.Approve(c.Context(), c.Params("id"), req.KeyID, req.WalletID, []byte(req.Password))
	switch {
	case errors.Is(err, tonconnect.ErrAttemptNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "attempt not found"})
	case errors.Is(err, tonconnect.ErrNoSelection):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "key_id and wallet_id are required"})
	case errors.Is(err, tonconnect.ErrAttemptBusy):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "connect already in progress"})
	case errors.Is(err, models.ErrBadPassword):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "wrong password"})
	case errors.Is(err, models.ErrNoEncryptedSecret):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Error: "key is watch-only"})
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "key or wallet not found"})
	case err != nil:
		h.log.Error("connect approve failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "failed to establish session"})
	}

	h.publish(c, events.EventSessionCreated, map[string]any{
		"session_id": session.ID,
		"dapp":       session.Name,
		"key_id":     session.KeyID,
		"wallet_id":  session.WalletID,
	})
	return c.JSON(dto.NewSessionResponse(session))
}

// Close dismisses an attempt; safe to call in any state.
func (h *ConnectHandler) Close(c *fiber.Ctx) error {
	h.establisher.Close(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConnectHandler) ListSessions(c *fiber.Ctx) error {
	sessions, err := h.sessions.List(c.Context())
	if err != nil {
		h.log.Error("session list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	out := make([]dto.SessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, dto.NewSessionResponse(&sessions[i]))
	}
	return c.JSON(out)
}

// DeleteSession disconnects a dApp.
func (h *ConnectHandler) DeleteSession(c *fiber.Ctx) error {
	sessionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid session id"})
	}

	err = h.sessions.Delete(c.Context(), int64(sessionID))
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "session not found"})
	}
	if err != nil {
		h.log.Error("session delete failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	h.publish(c, events.EventSessionClosed, map[string]any{"session_id": int64(sessionID)})
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConnectHandler) publish(c *fiber.Ctx, eventType string, payload map[string]any) {
	if err := h.publisher.Publish(c.Context(), events.StreamWallet, events.Event{
		Type:    eventType,
		Payload: payload,
	}); err != nil {
		h.log.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}

func attemptResponse(a *tonconnect.Attempt) dto.AttemptResponse {
	return dto.AttemptResponse{
		ID: a.ID,
		Identity: dto.IdentityResponse{
			Name:    a.Identity.Name,
			URL:     a.Identity.URL,
			Host:    a.Identity.Host,
			IconURL: a.Identity.IconURL,
		},
		State:               a.State(),
		PreselectedKeyID:    a.PreselectedKeyID,
		PreselectedWalletID: a.PreselectedWalletID,
	}
}
