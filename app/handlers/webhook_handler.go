package handlers

import (
	"context"
	"crypto/subtle"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/waveline/waveline/app/dto"
	businessflow "github.com/waveline/waveline/business_flow"
	"github.com/waveline/waveline/config"
	"github.com/waveline/waveline/utils"
)

// WebhookHandlerInterface defines the contract for the provider webhook
type WebhookHandlerInterface interface {
	Verify(c fiber.Ctx) error
	Receive(c fiber.Ctx) error
}

// WebhookHandler terminates the provider callback surface
type WebhookHandler struct {
	webhookFlow businessflow.WebhookFlow
	cfg         config.WebhookConfig
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhookFlow businessflow.WebhookFlow, cfg config.WebhookConfig) *WebhookHandler {
	return &WebhookHandler{
		webhookFlow: webhookFlow,
		cfg:         cfg,
	}
}

// Verify answers the provider's challenge/response subscription handshake.
// The challenge is echoed back as plain text only when the verify token
// matches.
func (h *WebhookHandler) Verify(c fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || challenge == "" {
		return c.Status(fiber.StatusBadRequest).SendString("bad verification request")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.VerifyToken)) != 1 {
		return c.Status(fiber.StatusForbidden).SendString("verify token mismatch")
	}
	return c.Status(fiber.StatusOK).SendString(challenge)
}

// Receive ingests delivery-status and inbound-message events. The provider
// re-delivers on non-2xx, so event-level failures are swallowed into the ack
// and only a malformed envelope is rejected.
func (h *WebhookHandler) Receive(c fiber.Ctx) error {
	var payload dto.WebhookPayload
	if err := c.Bind().JSON(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid webhook payload",
			Error:   dto.ErrorDetail{Code: "INVALID_PAYLOAD", Details: err.Error()},
		})
	}

	ack, err := h.webhookFlow.HandleEvents(h.createRequestContext(c), &payload)
	if err != nil {
		log.Println("Webhook processing failed", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Webhook processing failed",
			Error:   dto.ErrorDetail{Code: "WEBHOOK_FAILED"},
		})
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Webhook processed",
		Data:    ack,
	})
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *WebhookHandler) createRequestContext(c fiber.Ctx) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, "/api/v1/webhooks/whatsapp")
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}
