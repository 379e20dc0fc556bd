// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/waveline/waveline/app/dispatch"
	"github.com/waveline/waveline/app/dto"
	"github.com/waveline/waveline/models"
	"github.com/waveline/waveline/repository"
	"github.com/waveline/waveline/utils"
)

// Column names accepted as the recipient address in spreadsheet imports
var recipientColumnNames = map[string]bool{
	"recipient": true,
	"phone":     true,
	"mobile":    true,
	"address":   true,
	"number":    true,
}

// CampaignFlow handles the campaign business logic
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error)
	ImportCampaign(ctx context.Context, req *dto.ImportCampaignRequest, file io.Reader, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error)
	StartCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) (*dto.StartCampaignResponse, error)
	GetCampaign(ctx context.Context, campaignUUID string) (*dto.GetCampaignResponse, error)
	ReprocessFailures(ctx context.Context, campaignUUID string, req *dto.ReprocessFailuresRequest, metadata *ClientMetadata) (*dto.ReprocessFailuresResponse, error)
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	itemRepo     repository.CampaignItemRepository
	channelRepo  repository.ChannelRepository
	templateRepo repository.TemplateRepository
	enqueuer     DispatchEnqueuer
	db           *gorm.DB
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	itemRepo repository.CampaignItemRepository,
	channelRepo repository.ChannelRepository,
	templateRepo repository.TemplateRepository,
	enqueuer DispatchEnqueuer,
	db *gorm.DB,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		itemRepo:     itemRepo,
		channelRepo:  channelRepo,
		templateRepo: templateRepo,
		enqueuer:     enqueuer,
		db:           db,
	}
}

// CreateCampaign persists a campaign with one pending item per valid
// recipient row. Rows whose address cannot be normalized are skipped and
// counted, never silently dropped. Unmapped template placeholders come back
// as warnings, not errors.
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error) {
	channel, err := getChannel(ctx, s.channelRepo, req.ChannelID)
	if err != nil {
		return nil, NewBusinessError("CHANNEL_LOOKUP_FAILED", "Failed to lookup channel", err)
	}

	languageCode := req.LanguageCode
	if languageCode == "" {
		languageCode = "en"
	}
	tmpl, err := getTemplate(ctx, s.templateRepo, channel.ID, req.TemplateName, languageCode)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to lookup template", err)
	}
	if !tmpl.IsActive {
		return nil, NewBusinessError("TEMPLATE_INACTIVE", "Template is deactivated", ErrTemplateInactive)
	}

	var warnings []string
	for _, slot := range tmpl.MissingMappings() {
		warnings = append(warnings, fmt.Sprintf("placeholder %s has no mapping and will render as %q", slot, dispatch.DefaultValue))
	}

	rate := req.ProcessingRate
	if rate <= 0 {
		rate = 10
	}
	if rate > utils.GlobalRateCeiling {
		rate = utils.GlobalRateCeiling
	}

	items := make([]*models.CampaignItem, 0, len(req.Items))
	skipped := 0
	for _, row := range req.Items {
		normalized, err := dispatch.NormalizeAddress(row.Recipient)
		if err != nil {
			skipped++
			continue
		}
		items = append(items, &models.CampaignItem{
			Recipient: normalized,
			Params:    models.ItemParams(row.Params),
			Status:    models.ItemStatusPending,
			CreatedAt: utils.UTCNow(),
		})
	}
	if len(items) == 0 {
		return nil, NewBusinessError("CAMPAIGN_EMPTY", "No valid recipients in upload", ErrCampaignItemsRequired)
	}

	campaign := &models.Campaign{
		UUID:           uuid.New(),
		ChannelID:      channel.ID,
		TemplateName:   tmpl.Name,
		LanguageCode:   tmpl.LanguageCode,
		Status:         models.CampaignStatusPending,
		TotalItems:     int64(len(items)),
		ProcessingRate: rate,
		ErrorSummary:   models.ErrorSummary{},
		CreatedAt:      utils.UTCNow(),
	}

	// Campaign and items land atomically
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.campaignRepo.Save(txCtx, campaign); err != nil {
			return err
		}
		for _, item := range items {
			item.CampaignID = campaign.ID
		}
		return s.itemRepo.SaveBatch(txCtx, items)
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	return &dto.CreateCampaignResponse{
		Message:    "Campaign created successfully",
		ID:         campaign.ID,
		UUID:       campaign.UUID.String(),
		Status:     string(campaign.Status),
		TotalItems: campaign.TotalItems,
		Skipped:    skipped,
		Warnings:   warnings,
		CreatedAt:  campaign.CreatedAt.Format(time.RFC3339),
	}, nil
}

// ImportCampaign builds a campaign from an uploaded spreadsheet. The first
// sheet's header row names the columns; one of them must be the recipient
// address, the rest become per-item render parameters.
func (s *CampaignFlowImpl) ImportCampaign(ctx context.Context, req *dto.ImportCampaignRequest, file io.Reader, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error) {
	xl, err := excelize.OpenReader(file)
	if err != nil {
		return nil, NewBusinessError("IMPORT_FILE_INVALID", "Failed to open spreadsheet", err)
	}
	defer func() { _ = xl.Close() }()

	sheets := xl.GetSheetList()
	if len(sheets) == 0 {
		return nil, NewBusinessError("IMPORT_FILE_EMPTY", "Spreadsheet has no sheets", ErrImportFileEmpty)
	}
	rows, err := xl.GetRows(sheets[0])
	if err != nil {
		return nil, NewBusinessError("IMPORT_FILE_INVALID", "Failed to read spreadsheet rows", err)
	}
	if len(rows) < 2 {
		return nil, NewBusinessError("IMPORT_FILE_EMPTY", "Spreadsheet has no data rows", ErrImportFileEmpty)
	}

	header := rows[0]
	recipientCol := -1
	for i, name := range header {
		if recipientColumnNames[strings.ToLower(strings.TrimSpace(name))] {
			recipientCol = i
			break
		}
	}
	if recipientCol < 0 {
		return nil, NewBusinessError("IMPORT_MISSING_ADDRESS", "No recipient address column found", ErrImportMissingAddress)
	}

	items := make([]dto.CampaignItemInput, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if recipientCol >= len(row) || strings.TrimSpace(row[recipientCol]) == "" {
			continue
		}
		params := make(map[string]string, len(header)-1)
		for i, name := range header {
			if i == recipientCol || i >= len(row) {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" {
				continue
			}
			params[key] = strings.TrimSpace(row[i])
		}
		items = append(items, dto.CampaignItemInput{
			Recipient: strings.TrimSpace(row[recipientCol]),
			Params:    params,
		})
	}

	return s.CreateCampaign(ctx, &dto.CreateCampaignRequest{
		ChannelID:      req.ChannelID,
		TemplateName:   req.TemplateName,
		LanguageCode:   req.LanguageCode,
		ProcessingRate: req.ProcessingRate,
		Items:          items,
	}, metadata)
}

// StartCampaign queues a pending campaign for batch dispatch
func (s *CampaignFlowImpl) StartCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) (*dto.StartCampaignResponse, error) {
	campaign, err := s.getCampaign(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusPending {
		return nil, NewBusinessErrorf("CAMPAIGN_NOT_STARTABLE", "Campaign is %s, only pending campaigns can start", ErrCampaignNotStartable, campaign.Status)
	}
	if err := s.enqueuer.Enqueue(ctx, campaign.ID); err != nil {
		return nil, NewBusinessError("CAMPAIGN_ENQUEUE_FAILED", "Failed to queue campaign for dispatch", err)
	}
	return &dto.StartCampaignResponse{
		Message: "Campaign queued for dispatch",
		UUID:    campaign.UUID.String(),
		Status:  string(campaign.Status),
	}, nil
}

// GetCampaign returns the campaign with live item counts
func (s *CampaignFlowImpl) GetCampaign(ctx context.Context, campaignUUID string) (*dto.GetCampaignResponse, error) {
	campaign, err := s.getCampaign(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}
	counts, err := s.itemRepo.CountByStatus(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_COUNT_FAILED", "Failed to count campaign items", err)
	}
	return &dto.GetCampaignResponse{Campaign: ToCampaignDTO(campaign, counts)}, nil
}

// ReprocessFailures resets failed items of a completed campaign back to
// pending, optionally filtered to specific error codes and optionally
// swapping in a replacement template, then re-queues the campaign. A
// campaign with zero matching failed items is a no-op reporting zero.
func (s *CampaignFlowImpl) ReprocessFailures(ctx context.Context, campaignUUID string, req *dto.ReprocessFailuresRequest, metadata *ClientMetadata) (*dto.ReprocessFailuresResponse, error) {
	campaign, err := s.getCampaign(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusCompleted {
		return nil, NewBusinessError("CAMPAIGN_NOT_REPROCESSABLE", "Only completed campaigns can be reprocessed", ErrCampaignNotReprocessable)
	}

	if req.NewTemplate != nil && *req.NewTemplate != "" {
		tmpl, err := getTemplate(ctx, s.templateRepo, campaign.ChannelID, *req.NewTemplate, campaign.LanguageCode)
		if err != nil {
			return nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to lookup replacement template", err)
		}
		if !tmpl.IsActive {
			return nil, NewBusinessError("TEMPLATE_INACTIVE", "Replacement template is deactivated", ErrTemplateInactive)
		}
		campaign.TemplateName = tmpl.Name
	}

	var reset int64
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		var err error
		reset, err = s.itemRepo.ResetFailed(txCtx, campaign.ID, req.ErrorCodes)
		if err != nil {
			return err
		}
		if reset == 0 {
			return nil
		}
		if err := s.campaignRepo.Update(txCtx, campaign); err != nil {
			return err
		}
		return s.campaignRepo.UpdateStatus(txCtx, campaign.ID, models.CampaignStatusPending)
	})
	if err != nil {
		return nil, NewBusinessError("REPROCESS_FAILED", "Failed to reset failed items", err)
	}

	status := campaign.Status
	if reset > 0 {
		status = models.CampaignStatusPending
		if err := s.enqueuer.Enqueue(ctx, campaign.ID); err != nil {
			return nil, NewBusinessError("CAMPAIGN_ENQUEUE_FAILED", "Failed to queue campaign for dispatch", err)
		}
	}

	return &dto.ReprocessFailuresResponse{
		Message:     fmt.Sprintf("Reset %d failed items", reset),
		UUID:        campaign.UUID.String(),
		Reprocessed: reset,
		Status:      string(status),
	}, nil
}

func (s *CampaignFlowImpl) getCampaign(ctx context.Context, campaignUUID string) (*models.Campaign, error) {
	if campaignUUID == "" {
		return nil, NewBusinessError("CAMPAIGN_UUID_REQUIRED", "Campaign UUID is required", ErrCampaignUUIDRequired)
	}
	campaign, err := s.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	return campaign, nil
}
