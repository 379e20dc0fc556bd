package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemStatusIsForwardProgress(t *testing.T) {
	tests := []struct {
		name    string
		from    ItemStatus
		to      ItemStatus
		forward bool
	}{
		{"pending to sent", ItemStatusPending, ItemStatusSent, true},
		{"pending to failed", ItemStatusPending, ItemStatusFailed, true},
		{"sent to delivered", ItemStatusSent, ItemStatusDelivered, true},
		{"sent to read skipping delivered", ItemStatusSent, ItemStatusRead, true},
		{"delivered to read", ItemStatusDelivered, ItemStatusRead, true},

		{"delivered never regresses to sent", ItemStatusDelivered, ItemStatusSent, false},
		{"read never regresses to delivered", ItemStatusRead, ItemStatusDelivered, false},
		{"sent is not repeated", ItemStatusSent, ItemStatusSent, false},
		{"failed is terminal", ItemStatusFailed, ItemStatusDelivered, false},
		{"failed cannot become sent", ItemStatusFailed, ItemStatusSent, false},
		{"delivered requires a prior send", ItemStatusPending, ItemStatusDelivered, false},
		{"read requires a prior send", ItemStatusPending, ItemStatusRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.forward, tt.from.IsForwardProgress(tt.to))
		})
	}
}

func TestItemStatusValid(t *testing.T) {
	for _, s := range []ItemStatus{ItemStatusPending, ItemStatusSent, ItemStatusFailed, ItemStatusDelivered, ItemStatusRead} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, ItemStatus("queued").Valid())
	assert.False(t, ItemStatus("").Valid())
}
