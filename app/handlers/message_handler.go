package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/waveline/waveline/app/dto"
	businessflow "github.com/waveline/waveline/business_flow"
	"github.com/waveline/waveline/utils"
)

// MessageHandlerInterface defines the contract for message handlers
type MessageHandlerInterface interface {
	SendSingle(c fiber.Ctx) error
	OptIn(c fiber.Ctx) error
	ChannelQuality(c fiber.Ctx) error
}

// MessageHandler handles one-shot send and contact HTTP requests
type MessageHandler struct {
	messageFlow businessflow.MessageFlow
	validator   *validator.Validate
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messageFlow businessflow.MessageFlow) *MessageHandler {
	return &MessageHandler{
		messageFlow: messageFlow,
		validator:   validator.New(),
	}
}

func (h *MessageHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *MessageHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// SendSingle dispatches one template message outside any campaign
func (h *MessageHandler) SendSingle(c fiber.Ctx) error {
	var req dto.SendSingleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.messageFlow.SendSingle(h.createRequestContext(c, "/api/v1/messages/send"), &req, metadata)
	if err != nil {
		if businessflow.IsChannelNotFound(err) || businessflow.IsTemplateNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Channel or template not found", "NOT_FOUND", nil)
		}
		if businessflow.IsChannelInactive(err) || businessflow.IsTemplateInactive(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Channel or template is inactive", "INACTIVE", nil)
		}

		log.Println("Single send failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Single send failed", "SEND_FAILED", nil)
	}

	// A gated or provider-failed item is a successful request with a failed
	// outcome; the caller reads the status field
	return h.SuccessResponse(c, fiber.StatusOK, "Send processed", result)
}

// OptIn clears a contact's opt-out flag by operator action
func (h *MessageHandler) OptIn(c fiber.Ctx) error {
	address := c.Params("address")
	if address == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Contact address is required", "MISSING_ADDRESS", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.messageFlow.OptIn(h.createRequestContext(c, "/api/v1/contacts/:address/opt-in"), address, metadata)
	if err != nil {
		if businessflow.IsContactNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", "CONTACT_NOT_FOUND", nil)
		}

		log.Println("Opt-in failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Opt-in failed", "OPT_IN_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Contact opted back in", result)
}

// ChannelQuality polls the provider for a channel's quality rating
func (h *MessageHandler) ChannelQuality(c fiber.Ctx) error {
	channelID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Channel id must be numeric", "INVALID_CHANNEL_ID", nil)
	}

	result, err := h.messageFlow.ChannelQuality(h.createRequestContext(c, "/api/v1/channels/:id/quality"), uint(channelID))
	if err != nil {
		if businessflow.IsChannelNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Channel not found", "CHANNEL_NOT_FOUND", nil)
		}

		log.Println("Quality poll failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Quality poll failed", "QUALITY_POLL_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Quality rating retrieved", result)
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *MessageHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}
