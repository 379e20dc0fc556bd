package handlers

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/waveline/waveline/app/dto"
	businessflow "github.com/waveline/waveline/business_flow"
	"github.com/waveline/waveline/utils"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	ImportCampaign(c fiber.Ctx) error
	StartCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	ReprocessFailures(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	campaignFlow businessflow.CampaignFlow
	validator    *validator.Validate
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow) *CampaignHandler {
	return &CampaignHandler{
		campaignFlow: campaignFlow,
		validator:    validator.New(),
	}
}

func (h *CampaignHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CampaignHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateCampaign handles bulk campaign creation from a JSON item list
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
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

	result, err := h.campaignFlow.CreateCampaign(h.createRequestContext(c, "/api/v1/campaigns"), &req, metadata)
	if err != nil {
		if businessflow.IsChannelNotFound(err) || businessflow.IsTemplateNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Channel or template not found", "NOT_FOUND", nil)
		}
		if businessflow.IsChannelInactive(err) || businessflow.IsTemplateInactive(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Channel or template is inactive", "INACTIVE", nil)
		}

		log.Println("Campaign creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", result)
}

// ImportCampaign handles bulk campaign creation from a spreadsheet upload
func (h *CampaignHandler) ImportCampaign(c fiber.Ctx) error {
	var req dto.ImportCampaignRequest
	if err := c.Bind().Form(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid form data", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Spreadsheet file is required", "MISSING_FILE", nil)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Failed to open uploaded file", "INVALID_FILE", err.Error())
	}
	defer file.Close()

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.campaignFlow.ImportCampaign(h.createRequestContext(c, "/api/v1/campaigns/import"), &req, file, metadata)
	if err != nil {
		if businessflow.IsChannelNotFound(err) || businessflow.IsTemplateNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Channel or template not found", "NOT_FOUND", nil)
		}

		log.Println("Campaign import failed", err)
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign import failed", "CAMPAIGN_IMPORT_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign imported successfully", result)
}

// StartCampaign queues a pending campaign for dispatch
func (h *CampaignHandler) StartCampaign(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.campaignFlow.StartCampaign(h.createRequestContext(c, "/api/v1/campaigns/:uuid/start"), campaignUUID, metadata)
	if err != nil {
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		if businessflow.IsCampaignNotStartable(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign cannot be started in current status", "CAMPAIGN_NOT_STARTABLE", nil)
		}

		log.Println("Campaign start failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign start failed", "CAMPAIGN_START_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign queued for dispatch", result)
}

// GetCampaign returns a campaign with its live counters
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	result, err := h.campaignFlow.GetCampaign(h.createRequestContext(c, "/api/v1/campaigns/:uuid"), campaignUUID)
	if err != nil {
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}

		log.Println("Campaign fetch failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign fetch failed", "CAMPAIGN_FETCH_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", result)
}

// ReprocessFailures resets failed items of a completed campaign
func (h *CampaignHandler) ReprocessFailures(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	var req dto.ReprocessFailuresRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.campaignFlow.ReprocessFailures(h.createRequestContext(c, "/api/v1/campaigns/:uuid/reprocess"), campaignUUID, &req, metadata)
	if err != nil {
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		if businessflow.IsCampaignNotReprocessable(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Only completed campaigns can be reprocessed", "CAMPAIGN_NOT_REPROCESSABLE", nil)
		}
		if businessflow.IsTemplateNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Replacement template not found", "TEMPLATE_NOT_FOUND", nil)
		}

		log.Println("Campaign reprocess failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign reprocess failed", "REPROCESS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Reprocess completed", result)
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *CampaignHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}
