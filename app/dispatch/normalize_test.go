package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "formatted brazilian number",
			input:    "+55 (11) 91234-5678",
			expected: "5511912345678",
		},
		{
			name:     "already normalized",
			input:    "5511912345678",
			expected: "5511912345678",
		},
		{
			name:     "international call prefix stripped",
			input:    "005511912345678",
			expected: "5511912345678",
		},
		{
			name:     "dots and spaces",
			input:    "49.170.123 4567",
			expected: "491701234567",
		},
		{
			name:    "too short",
			input:   "1234567",
			wantErr: true,
		},
		{
			name:     "eight digits is the floor",
			input:    "12345678",
			expected: "12345678",
		},
		{
			name:     "fifteen digits is the ceiling",
			input:    "123456789012345",
			expected: "123456789012345",
		},
		{
			name:    "sixteen digits rejected",
			input:   "1234567890123456",
			wantErr: true,
		},
		{
			name:    "no digits at all",
			input:   "not a number",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAddress(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeAddressIdempotent(t *testing.T) {
	once, err := NormalizeAddress("+55 (11) 91234-5678")
	require.NoError(t, err)

	twice, err := NormalizeAddress(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}
