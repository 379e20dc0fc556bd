// Package services contains external service integrations.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/waveline/waveline/config"
	"github.com/waveline/waveline/models"
)

// TemplateComponent is one component of an outbound template message.
type TemplateComponent struct {
	Type       string              `json:"type"`
	SubType    string              `json:"sub_type,omitempty"`
	Index      string              `json:"index,omitempty"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

// TemplateParameter is a single rendered placeholder value.
type TemplateParameter struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	Currency *CurrencyParam `json:"currency,omitempty"`
	DateTime *DateTimeParam `json:"date_time,omitempty"`
}

type CurrencyParam struct {
	FallbackValue string `json:"fallback_value"`
	Code          string `json:"code"`
	Amount1000    int64  `json:"amount_1000"`
}

type DateTimeParam struct {
	FallbackValue string `json:"fallback_value"`
}

// ProviderError is a structured error returned by the messaging provider API.
type ProviderError struct {
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	Details    string `json:"-"`
	HTTPStatus int    `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("provider error %d: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// WhatsAppClient sends messages and reads channel health through the provider API.
type WhatsAppClient interface {
	SendTemplate(ctx context.Context, channel *models.Channel, recipient, templateName, languageCode string, components []TemplateComponent) (string, error)
	SendText(ctx context.Context, channel *models.Channel, recipient, body string) (string, error)
	QualityRating(ctx context.Context, channel *models.Channel) (string, error)
}

type httpWhatsAppClient struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewWhatsAppClient returns the mock client when PROVIDER_MOCK is set,
// otherwise a client against the real provider API.
func NewWhatsAppClient(cfg config.ProviderConfig) WhatsAppClient {
	if cfg.Mock {
		return NewMockWhatsAppClient()
	}
	return &httpWhatsAppClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *httpWhatsAppClient) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.APIVersion, path)
}

type sendMessageRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Template         *templatePayload `json:"template,omitempty"`
	Text             *textPayload     `json:"text,omitempty"`
}

type templatePayload struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type textPayload struct {
	Body string `json:"body"`
}

type sendMessageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendTemplate posts one template message and returns the provider message ID.
func (c *httpWhatsAppClient) SendTemplate(ctx context.Context, channel *models.Channel, recipient, templateName, languageCode string, components []TemplateComponent) (string, error) {
	payload := sendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               recipient,
		Type:             "template",
		Template: &templatePayload{
			Name:       templateName,
			Language:   templateLanguage{Code: languageCode},
			Components: components,
		},
	}
	return c.send(ctx, channel, payload)
}

// SendText posts one free-form text message. The provider only accepts these
// inside an open session window; outside it the call fails with code 131047.
func (c *httpWhatsAppClient) SendText(ctx context.Context, channel *models.Channel, recipient, body string) (string, error) {
	payload := sendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               recipient,
		Type:             "text",
		Text:             &textPayload{Body: body},
	}
	return c.send(ctx, channel, payload)
}

func (c *httpWhatsAppClient) send(ctx context.Context, channel *models.Channel, payload sendMessageRequest) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	url := c.endpoint(channel.PhoneNumberID + "/messages")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+channel.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeProviderError(resp)
	}

	var out sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", fmt.Errorf("provider response missing message id")
	}
	return out.Messages[0].ID, nil
}

// QualityRating reads the channel's current quality rating (GREEN, YELLOW, RED).
func (c *httpWhatsAppClient) QualityRating(ctx context.Context, channel *models.Channel) (string, error) {
	url := c.endpoint(channel.PhoneNumberID) + "?fields=quality_rating"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+channel.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeProviderError(resp)
	}

	var out struct {
		QualityRating string `json:"quality_rating"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.QualityRating, nil
}

func decodeProviderError(resp *http.Response) error {
	bodyBytes, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("provider http status %d: unable to read response body: %v", resp.StatusCode, readErr)
	}

	var envelope struct {
		Error struct {
			Message   string `json:"message"`
			Type      string `json:"type"`
			Code      int    `json:"code"`
			Subcode   int    `json:"error_subcode"`
			ErrorData struct {
				Details string `json:"details"`
			} `json:"error_data"`
		} `json:"error"`
	}
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil || envelope.Error.Code == 0 {
		return fmt.Errorf("provider http status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	return &ProviderError{
		Code:       envelope.Error.Code,
		Subcode:    envelope.Error.Subcode,
		Type:       envelope.Error.Type,
		Message:    envelope.Error.Message,
		Details:    envelope.Error.ErrorData.Details,
		HTTPStatus: resp.StatusCode,
	}
}

// MockWhatsAppClient records sends without touching the network.
type MockWhatsAppClient struct {
	mu sync.Mutex

	SendTemplateFunc  func(ctx context.Context, channel *models.Channel, recipient, templateName, languageCode string, components []TemplateComponent) (string, error)
	SendTextFunc      func(ctx context.Context, channel *models.Channel, recipient, body string) (string, error)
	QualityRatingFunc func(ctx context.Context, channel *models.Channel) (string, error)

	sent int64
}

func NewMockWhatsAppClient() *MockWhatsAppClient {
	return &MockWhatsAppClient{}
}

func (m *MockWhatsAppClient) SendTemplate(ctx context.Context, channel *models.Channel, recipient, templateName, languageCode string, components []TemplateComponent) (string, error) {
	if m.SendTemplateFunc != nil {
		return m.SendTemplateFunc(ctx, channel, recipient, templateName, languageCode, components)
	}
	return m.nextID(), nil
}

func (m *MockWhatsAppClient) SendText(ctx context.Context, channel *models.Channel, recipient, body string) (string, error) {
	if m.SendTextFunc != nil {
		return m.SendTextFunc(ctx, channel, recipient, body)
	}
	return m.nextID(), nil
}

func (m *MockWhatsAppClient) QualityRating(ctx context.Context, channel *models.Channel) (string, error) {
	if m.QualityRatingFunc != nil {
		return m.QualityRatingFunc(ctx, channel)
	}
	return "GREEN", nil
}

func (m *MockWhatsAppClient) nextID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	return fmt.Sprintf("wamid.mock-%d", m.sent)
}

// SentCount reports how many messages the default mock behavior accepted.
func (m *MockWhatsAppClient) SentCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}
