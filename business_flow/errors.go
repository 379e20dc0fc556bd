// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Campaign-related errors
	ErrCampaignNotFound         = errors.New("campaign not found")
	ErrCampaignUUIDRequired     = errors.New("campaign UUID is required")
	ErrCampaignNotStartable     = errors.New("campaign cannot be started in current status")
	ErrCampaignNotReprocessable = errors.New("only completed campaigns can be reprocessed")
	ErrCampaignItemsRequired    = errors.New("campaign needs at least one valid recipient")
	ErrProcessingRateInvalid    = errors.New("processing rate must be positive")

	// Channel-related errors
	ErrChannelNotFound = errors.New("channel not found")
	ErrChannelInactive = errors.New("channel is inactive")

	// Template-related errors
	ErrTemplateNotFound     = errors.New("template not found")
	ErrTemplateInactive     = errors.New("template is deactivated")
	ErrTemplateNameRequired = errors.New("template name is required")

	// Recipient-related errors
	ErrRecipientRequired = errors.New("recipient address is required")
	ErrContactNotFound   = errors.New("contact not found")

	// Import errors
	ErrImportFileEmpty      = errors.New("import file contains no data rows")
	ErrImportMissingAddress = errors.New("import file has no recipient address column")

	// Webhook errors
	ErrWebhookPayloadInvalid = errors.New("webhook payload is malformed")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignNotStartable(err error) bool {
	return errors.Is(err, ErrCampaignNotStartable)
}

func IsCampaignNotReprocessable(err error) bool {
	return errors.Is(err, ErrCampaignNotReprocessable)
}

func IsChannelNotFound(err error) bool {
	return errors.Is(err, ErrChannelNotFound)
}

func IsChannelInactive(err error) bool {
	return errors.Is(err, ErrChannelInactive)
}

func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

func IsTemplateInactive(err error) bool {
	return errors.Is(err, ErrTemplateInactive)
}

func IsContactNotFound(err error) bool {
	return errors.Is(err, ErrContactNotFound)
}
