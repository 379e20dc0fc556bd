package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveline/waveline/app/dispatch"
	"github.com/waveline/waveline/app/dto"
	"github.com/waveline/waveline/app/services"
	"github.com/waveline/waveline/models"
)

type stubContactRepo struct {
	contacts map[string]*models.Contact
	cleared  []string
	optedOut []string
}

func (s *stubContactRepo) ByID(ctx context.Context, id uint) (*models.Contact, error) {
	return nil, nil
}

func (s *stubContactRepo) ByFilter(ctx context.Context, filter models.ContactFilter, orderBy string, limit, offset int) ([]*models.Contact, error) {
	return nil, nil
}

func (s *stubContactRepo) Save(ctx context.Context, entity *models.Contact) error { return nil }

func (s *stubContactRepo) SaveBatch(ctx context.Context, entities []*models.Contact) error {
	return nil
}

func (s *stubContactRepo) Update(ctx context.Context, entity *models.Contact) error { return nil }

func (s *stubContactRepo) Count(ctx context.Context, filter models.ContactFilter) (int64, error) {
	return 0, nil
}

func (s *stubContactRepo) ByAddress(ctx context.Context, address string) (*models.Contact, error) {
	return s.contacts[address], nil
}

func (s *stubContactRepo) UpsertOptOut(ctx context.Context, address, reason string, at time.Time) error {
	s.optedOut = append(s.optedOut, address)
	return nil
}

func (s *stubContactRepo) ClearOptOut(ctx context.Context, address string) error {
	s.cleared = append(s.cleared, address)
	return nil
}

func (s *stubContactRepo) TouchLastMessageSentAt(ctx context.Context, address string, at time.Time) error {
	return nil
}

type stubMessageRepo struct {
	saved   []*models.Message
	message *models.Message
}

func (s *stubMessageRepo) ByID(ctx context.Context, id uint) (*models.Message, error) {
	return nil, nil
}

func (s *stubMessageRepo) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	return nil, nil
}

func (s *stubMessageRepo) Save(ctx context.Context, entity *models.Message) error {
	s.saved = append(s.saved, entity)
	return nil
}

func (s *stubMessageRepo) SaveBatch(ctx context.Context, entities []*models.Message) error {
	return nil
}

func (s *stubMessageRepo) Update(ctx context.Context, entity *models.Message) error { return nil }

func (s *stubMessageRepo) Count(ctx context.Context, filter models.MessageFilter) (int64, error) {
	return 0, nil
}

func (s *stubMessageRepo) ByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error) {
	if s.message != nil && s.message.ProviderMessageID != nil && *s.message.ProviderMessageID == providerMessageID {
		return s.message, nil
	}
	return nil, nil
}

func activeTestTemplate() *models.Template {
	return &models.Template{
		ID:           1,
		ChannelID:    1,
		Name:         "order_update",
		LanguageCode: "en",
		IsActive:     true,
		Structure: models.TemplateStructure{
			BodyPlaceholders: []models.Placeholder{{Index: 1, Type: models.PlaceholderTypeText}},
		},
		Mappings: models.TemplateMappings{
			"body_1": {Source: models.MappingSourceColumn, Value: "name"},
		},
	}
}

func newTestMessageFlow(contacts *stubContactRepo, messages *stubMessageRepo, client services.WhatsAppClient) MessageFlow {
	channels := &stubChannelRepo{channel: &models.Channel{ID: 1, PhoneNumberID: "1234567890", IsActive: true}}
	templates := &stubTemplateRepo{template: activeTestTemplate()}
	dispatcher := dispatch.NewDispatcher(client, contacts)
	dispatcher.Backoff = []time.Duration{time.Millisecond}
	return NewMessageFlow(channels, templates, contacts, messages, dispatcher, client, nil)
}

func TestSendSingleSuccess(t *testing.T) {
	contacts := &stubContactRepo{contacts: map[string]*models.Contact{}}
	messages := &stubMessageRepo{}
	flow := newTestMessageFlow(contacts, messages, services.NewMockWhatsAppClient())

	resp, err := flow.SendSingle(context.Background(), &dto.SendSingleRequest{
		ChannelID:    1,
		TemplateName: "order_update",
		Recipient:    "+55 11 91234-5678",
		Params:       map[string]string{"name": "João"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, string(models.ItemStatusSent), resp.Status)
	assert.Equal(t, "wamid.mock-1", resp.ProviderMessageID)

	require.Len(t, messages.saved, 1)
	msg := messages.saved[0]
	assert.Equal(t, models.MessageDirectionOutbound, msg.Direction)
	assert.Equal(t, models.ItemStatusSent, msg.Status)
	require.NotNil(t, msg.ProviderMessageID)
}

func TestSendSingleGatedContactIsNotAnError(t *testing.T) {
	contacts := &stubContactRepo{contacts: map[string]*models.Contact{
		"5511912345678": {Address: "5511912345678", OptOut: true},
	}}
	messages := &stubMessageRepo{}
	client := services.NewMockWhatsAppClient()
	flow := newTestMessageFlow(contacts, messages, client)

	resp, err := flow.SendSingle(context.Background(), &dto.SendSingleRequest{
		ChannelID:    1,
		TemplateName: "order_update",
		Recipient:    "5511912345678",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, string(models.ItemStatusFailed), resp.Status)
	assert.Equal(t, "OPT_OUT", resp.ErrorCode)
	assert.Zero(t, client.SentCount())
	// The gated attempt still lands on the audit log
	require.Len(t, messages.saved, 1)
	assert.Equal(t, models.ItemStatusFailed, messages.saved[0].Status)
}

func TestSendSingleUnknownTemplate(t *testing.T) {
	flow := newTestMessageFlow(&stubContactRepo{}, &stubMessageRepo{}, services.NewMockWhatsAppClient())

	_, err := flow.SendSingle(context.Background(), &dto.SendSingleRequest{
		ChannelID:    1,
		TemplateName: "missing",
		Recipient:    "5511912345678",
	}, nil)
	assert.True(t, IsTemplateNotFound(err))
}

func TestOptIn(t *testing.T) {
	contacts := &stubContactRepo{contacts: map[string]*models.Contact{
		"5511912345678": {Address: "5511912345678", OptOut: true},
	}}
	flow := newTestMessageFlow(contacts, &stubMessageRepo{}, services.NewMockWhatsAppClient())

	resp, err := flow.OptIn(context.Background(), "+55 (11) 91234-5678", nil)
	require.NoError(t, err)

	assert.Equal(t, "5511912345678", resp.Address)
	assert.Equal(t, []string{"5511912345678"}, contacts.cleared)
}

func TestOptInUnknownContact(t *testing.T) {
	flow := newTestMessageFlow(&stubContactRepo{contacts: map[string]*models.Contact{}}, &stubMessageRepo{}, services.NewMockWhatsAppClient())

	_, err := flow.OptIn(context.Background(), "5511912345678", nil)
	assert.True(t, IsContactNotFound(err))
}

func TestChannelQuality(t *testing.T) {
	flow := newTestMessageFlow(&stubContactRepo{}, &stubMessageRepo{}, services.NewMockWhatsAppClient())

	resp, err := flow.ChannelQuality(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, uint(1), resp.ChannelID)
	assert.Equal(t, "GREEN", resp.QualityRating)
}
