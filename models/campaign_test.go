package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    CampaignStatus
		to      CampaignStatus
		allowed bool
	}{
		{"pending to processing", CampaignStatusPending, CampaignStatusProcessing, true},
		{"pending to failed", CampaignStatusPending, CampaignStatusFailed, true},
		{"pending to completed", CampaignStatusPending, CampaignStatusCompleted, false},
		{"processing to completed", CampaignStatusProcessing, CampaignStatusCompleted, true},
		{"processing to failed", CampaignStatusProcessing, CampaignStatusFailed, true},
		{"processing to pending", CampaignStatusProcessing, CampaignStatusPending, false},
		{"completed to pending for reprocess", CampaignStatusCompleted, CampaignStatusPending, true},
		{"completed to processing", CampaignStatusCompleted, CampaignStatusProcessing, false},
		{"failed is terminal", CampaignStatusFailed, CampaignStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Campaign{Status: tt.from}
			assert.Equal(t, tt.allowed, c.CanTransitionTo(tt.to))
		})
	}
}

func TestCampaignIsTerminal(t *testing.T) {
	assert.False(t, (&Campaign{Status: CampaignStatusPending}).IsTerminal())
	assert.False(t, (&Campaign{Status: CampaignStatusProcessing}).IsTerminal())
	assert.True(t, (&Campaign{Status: CampaignStatusCompleted}).IsTerminal())
	assert.True(t, (&Campaign{Status: CampaignStatusFailed}).IsTerminal())
}

func TestCampaignBeforeCreateDefaults(t *testing.T) {
	c := &Campaign{}
	require.NoError(t, c.BeforeCreate())

	assert.NotEmpty(t, c.UUID)
	assert.Equal(t, CampaignStatusPending, c.Status)
	assert.NotNil(t, c.ErrorSummary)
	assert.False(t, c.CreatedAt.IsZero())
}

func TestErrorSummaryMerge(t *testing.T) {
	a := ErrorSummary{"131047": 3, "OPT_OUT": 1}
	a.Merge(ErrorSummary{"131047": 2, "130429": 5})

	assert.Equal(t, ErrorSummary{"131047": 5, "OPT_OUT": 1, "130429": 5}, a)
}
