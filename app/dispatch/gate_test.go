package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/waveline/waveline/models"
)

func TestCheckEligibility(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Hour)
	stale := now.Add(-25 * time.Hour)
	exactlyWindow := now.Add(-24 * time.Hour)

	tests := []struct {
		name       string
		contact    *models.Contact
		eligible   bool
		wantReason string
	}{
		{
			name:     "unknown recipient is eligible",
			contact:  nil,
			eligible: true,
		},
		{
			name:     "fresh contact is eligible",
			contact:  &models.Contact{LastMessageSentAt: &recent},
			eligible: true,
		},
		{
			name:     "never messaged contact is eligible",
			contact:  &models.Contact{},
			eligible: true,
		},
		{
			name:       "opted out",
			contact:    &models.Contact{OptOut: true, LastMessageSentAt: &recent},
			eligible:   false,
			wantReason: CodeOptOut,
		},
		{
			name:       "opt-out wins over stale window",
			contact:    &models.Contact{OptOut: true, LastMessageSentAt: &stale},
			eligible:   false,
			wantReason: CodeOptOut,
		},
		{
			name:       "session window expired",
			contact:    &models.Contact{LastMessageSentAt: &stale},
			eligible:   false,
			wantReason: CodeSessionWindowExpired,
		},
		{
			name:     "exactly at the window boundary still eligible",
			contact:  &models.Contact{LastMessageSentAt: &exactlyWindow},
			eligible: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckEligibility(tt.contact, now)
			assert.Equal(t, tt.eligible, result.Eligible)
			assert.Equal(t, tt.wantReason, result.Reason)
		})
	}
}
