package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waveline/waveline/app/services"
)

func TestClassifyProviderErrors(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		wantClass ErrorClass
		retryable bool
	}{
		{"rate limit", 130429, ClassRetryable, true},
		{"spam rate limit", 131048, ClassRetryable, true},
		{"pair rate limit", 131056, ClassRetryable, true},
		{"service unavailable", 2, ClassRetryable, true},
		{"invalid parameter", 100, ClassPermanent, false},
		{"re-engagement required", 131047, ClassPermanent, false},
		{"undeliverable", 131026, ClassPermanent, false},
		{"parameter count mismatch", 132000, ClassPermanent, false},
		{"template paused", 132015, ClassTemplatePause, false},
		{"template disabled", 132016, ClassTemplatePause, false},
		{"unknown code is permanent", 999999, ClassPermanent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(&services.ProviderError{Code: tt.code, Message: tt.name})
			assert.Equal(t, tt.wantClass, c.Class)
			assert.Equal(t, tt.retryable, c.Retryable())
			assert.Equal(t, tt.name, c.Message)
		})
	}
}

func TestClassifyProviderErrorCodeString(t *testing.T) {
	c := Classify(&services.ProviderError{Code: 131047, Message: "re-engagement required"})
	assert.Equal(t, "131047", c.Code)
}

func TestClassifyNonProviderError(t *testing.T) {
	c := Classify(errors.New("dial tcp: connection refused"))
	assert.Equal(t, ClassInfrastructure, c.Class)
	assert.Equal(t, CodeInternalError, c.Code)
	assert.True(t, c.Retryable())
}

func TestClassifyTemplatePauseSignature(t *testing.T) {
	tests := []struct {
		name string
		err  *services.ProviderError
		want ErrorClass
	}{
		{
			"pause subcode under a generic code",
			&services.ProviderError{Code: 131026, Subcode: 2494010, Message: "Template is paused"},
			ClassTemplatePause,
		},
		{
			"pause message under a generic code",
			&services.ProviderError{Code: 100, Message: "The template has been paused due to low quality"},
			ClassTemplatePause,
		},
		{
			"disabled message in error details",
			&services.ProviderError{Code: 1, Details: "template was disabled"},
			ClassTemplatePause,
		},
		{
			"template message without pause wording stays permanent",
			&services.ProviderError{Code: 132001, Message: "template does not exist"},
			ClassPermanent,
		},
		{
			"paused wording without a template reference stays retryable",
			&services.ProviderError{Code: 2, Message: "delivery paused, try again"},
			ClassRetryable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err).Class)
		})
	}
}

func TestClassifyWrappedProviderError(t *testing.T) {
	wrapped := errors.Join(errors.New("send failed"), &services.ProviderError{Code: 130429})
	c := Classify(wrapped)
	assert.Equal(t, ClassRetryable, c.Class)
	assert.Equal(t, "130429", c.Code)
}
