package dispatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveline/waveline/app/services"
	"github.com/waveline/waveline/models"
)

func bodyTemplate(placeholders []models.Placeholder, mappings models.TemplateMappings) *models.Template {
	return &models.Template{
		Name:         "order_update",
		LanguageCode: "pt_BR",
		IsActive:     true,
		Structure: models.TemplateStructure{
			BodyPlaceholders: placeholders,
		},
		Mappings: mappings,
	}
}

func TestRenderComponentsBodyText(t *testing.T) {
	tmpl := bodyTemplate(
		[]models.Placeholder{
			{Index: 1, Type: models.PlaceholderTypeText},
			{Index: 2, Type: models.PlaceholderTypeText},
		},
		models.TemplateMappings{
			"body_1": {Source: models.MappingSourceColumn, Value: "name"},
			"body_2": {Source: models.MappingSourceFixed, Value: "Loja Central"},
		},
	)

	components, err := RenderComponents(tmpl, models.ItemParams{"name": "João"})
	require.NoError(t, err)
	require.Len(t, components, 1)

	body := components[0]
	assert.Equal(t, "body", body.Type)
	require.Len(t, body.Parameters, 2)
	assert.Equal(t, "João", body.Parameters[0].Text)
	assert.Equal(t, "Loja Central", body.Parameters[1].Text)
}

func TestRenderComponentsMissingColumnDefaults(t *testing.T) {
	tmpl := bodyTemplate(
		[]models.Placeholder{{Index: 1, Type: models.PlaceholderTypeText}},
		models.TemplateMappings{
			"body_1": {Source: models.MappingSourceColumn, Value: "name"},
		},
	)

	components, err := RenderComponents(tmpl, models.ItemParams{"other": "value"})
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.Equal(t, DefaultValue, components[0].Parameters[0].Text)
}

func TestRenderComponentsUnmappedSlotDefaults(t *testing.T) {
	tmpl := bodyTemplate(
		[]models.Placeholder{{Index: 1, Type: models.PlaceholderTypeText}},
		models.TemplateMappings{},
	)

	components, err := RenderComponents(tmpl, models.ItemParams{"name": "João"})
	require.NoError(t, err)
	assert.Equal(t, DefaultValue, components[0].Parameters[0].Text)
}

func TestRenderComponentsCurrency(t *testing.T) {
	tmpl := bodyTemplate(
		[]models.Placeholder{{Index: 1, Type: models.PlaceholderTypeCurrency}},
		models.TemplateMappings{
			"body_1": {Source: models.MappingSourceColumn, Value: "total"},
		},
	)

	t.Run("brazilian format with default code", func(t *testing.T) {
		components, err := RenderComponents(tmpl, models.ItemParams{"total": "R$ 1234,56"})
		require.NoError(t, err)

		param := components[0].Parameters[0]
		require.Equal(t, "currency", param.Type)
		require.NotNil(t, param.Currency)
		assert.Equal(t, "BRL", param.Currency.Code)
		assert.Equal(t, int64(1234560), param.Currency.Amount1000)
		assert.Equal(t, "R$ 1234,56", param.Currency.FallbackValue)
	})

	t.Run("plain amount to minor units", func(t *testing.T) {
		components, err := RenderComponents(tmpl, models.ItemParams{"total": "42,50"})
		require.NoError(t, err)

		param := components[0].Parameters[0]
		require.Equal(t, "currency", param.Type)
		require.NotNil(t, param.Currency)
		assert.Equal(t, int64(42500), param.Currency.Amount1000)
		assert.Equal(t, "42,50", param.Currency.FallbackValue)
	})

	t.Run("explicit currency code from row", func(t *testing.T) {
		components, err := RenderComponents(tmpl, models.ItemParams{
			"total":         "19.99",
			"currency_code": "USD",
		})
		require.NoError(t, err)

		param := components[0].Parameters[0]
		require.NotNil(t, param.Currency)
		assert.Equal(t, "USD", param.Currency.Code)
		assert.Equal(t, int64(19990), param.Currency.Amount1000)
	})

	t.Run("unparseable amount degrades to text", func(t *testing.T) {
		components, err := RenderComponents(tmpl, models.ItemParams{"total": "a combinar"})
		require.NoError(t, err)

		param := components[0].Parameters[0]
		assert.Equal(t, "text", param.Type)
		assert.Nil(t, param.Currency)
		assert.Equal(t, "a combinar", param.Text)
	})
}

func TestRenderComponentsDateTimeFallback(t *testing.T) {
	tmpl := bodyTemplate(
		[]models.Placeholder{{Index: 1, Type: models.PlaceholderTypeDateTime}},
		models.TemplateMappings{
			"body_1": {Source: models.MappingSourceColumn, Value: "due"},
		},
	)

	components, err := RenderComponents(tmpl, models.ItemParams{"due": "15 de março às 14h"})
	require.NoError(t, err)

	param := components[0].Parameters[0]
	assert.Equal(t, "date_time", param.Type)
	require.NotNil(t, param.DateTime)
	assert.Equal(t, "15 de março às 14h", param.DateTime.FallbackValue)
}

func TestRenderComponentsButtons(t *testing.T) {
	newTemplate := func(omitIfEmpty bool) *models.Template {
		return &models.Template{
			Name:         "order_tracking",
			LanguageCode: "pt_BR",
			Structure: models.TemplateStructure{
				Buttons: []models.ButtonSpec{
					{
						Index:   0,
						SubType: models.ButtonSubTypeURL,
						Placeholders: []models.Placeholder{
							{Index: 1, Type: models.PlaceholderTypeText},
						},
					},
				},
			},
			Mappings: models.TemplateMappings{
				"button_0_1": {
					Source:      models.MappingSourceColumn,
					Value:       "tracking_path",
					OmitIfEmpty: omitIfEmpty,
				},
			},
		}
	}

	t.Run("url button rendered", func(t *testing.T) {
		components, err := RenderComponents(newTemplate(false), models.ItemParams{
			"tracking_path": "orders/AB-1234",
		})
		require.NoError(t, err)
		require.Len(t, components, 1)

		btn := components[0]
		assert.Equal(t, "button", btn.Type)
		assert.Equal(t, "url", btn.SubType)
		assert.Equal(t, "0", btn.Index)
		require.Len(t, btn.Parameters, 1)
		assert.Equal(t, "orders%2FAB-1234", btn.Parameters[0].Text)
	})

	t.Run("omit-if-empty drops the whole button", func(t *testing.T) {
		components, err := RenderComponents(newTemplate(true), models.ItemParams{})
		require.NoError(t, err)
		assert.Empty(t, components)
	})

	t.Run("without omit-if-empty the default fills in", func(t *testing.T) {
		components, err := RenderComponents(newTemplate(false), models.ItemParams{})
		require.NoError(t, err)
		require.Len(t, components, 1)
		assert.Equal(t, DefaultValue, components[0].Parameters[0].Text)
	})

	t.Run("shortener link replaced with default", func(t *testing.T) {
		components, err := RenderComponents(newTemplate(false), models.ItemParams{
			"tracking_path": "https://bit.ly/3xYz12",
		})
		require.NoError(t, err)
		require.Len(t, components, 1)
		assert.Equal(t, DefaultValue, components[0].Parameters[0].Text)
	})
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"collapses spaces and tabs", "a  b\t\tc", "a b c"},
		{"keeps newlines", "line one\nline two", "line one\nline two"},
		{"strips control characters", "he\x00llo\x07", "hello"},
		{"trims edges", "  padded  ", "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeText(tt.input))
		})
	}
}

func TestSanitizeTextClampsOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("ã", 600) // 2 bytes per rune, 1200 bytes total
	out := sanitizeText(long)

	assert.LessOrEqual(t, len(out), maxParamLength)
	// The clamp must never split a rune in half
	assert.True(t, strings.HasSuffix(out, "ã"))
	assert.Equal(t, strings.Repeat("ã", 512), out)
}

func TestIsShortenerLink(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"https://bit.ly/abc", true},
		{"http://www.tinyurl.com/xyz", true},
		{"bit.ly/abc", true},
		{"https://example.com/bit.ly", false},
		{"https://mybit.ly.example.com/x", false},
		{"https://waveline.io/orders/1", false},
		{"plain text", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, isShortenerLink(tt.input))
		})
	}
}

func TestRenderComponentsHeaderAndBodyOrder(t *testing.T) {
	tmpl := &models.Template{
		Name: "promo",
		Structure: models.TemplateStructure{
			HeaderPlaceholders: []models.Placeholder{{Index: 1, Type: models.PlaceholderTypeText}},
			BodyPlaceholders:   []models.Placeholder{{Index: 1, Type: models.PlaceholderTypeText}},
		},
		Mappings: models.TemplateMappings{
			"header_1": {Source: models.MappingSourceFixed, Value: "Oferta"},
			"body_1":   {Source: models.MappingSourceColumn, Value: "name"},
		},
	}

	components, err := RenderComponents(tmpl, models.ItemParams{"name": "Maria"})
	require.NoError(t, err)
	require.Len(t, components, 2)
	assert.Equal(t, []string{"header", "body"}, []string{components[0].Type, components[1].Type})
	assert.Equal(t, services.TemplateParameter{Type: "text", Text: "Oferta"}, components[0].Parameters[0])
}
