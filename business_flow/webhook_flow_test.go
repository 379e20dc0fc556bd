package businessflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveline/waveline/app/dispatch"
	"github.com/waveline/waveline/app/dto"
	"github.com/waveline/waveline/models"
	"github.com/waveline/waveline/utils"
)

func newTestWebhookFlow(campaigns *stubCampaignRepo, items *stubItemRepo, messages *stubMessageRepo, contacts *stubContactRepo) WebhookFlow {
	channels := &stubChannelRepo{channel: &models.Channel{ID: 1, PhoneNumberID: "1234567890", IsActive: true}}
	return NewWebhookFlow(campaigns, items, messages, contacts, channels, dispatch.NewAggregator(campaigns, items), nil)
}

func statusPayload(providerMessageID, status string) *dto.WebhookPayload {
	return &dto.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []dto.WebhookEntry{{
			Changes: []dto.WebhookChange{{
				Field: "messages",
				Value: dto.WebhookValue{
					Metadata: dto.WebhookMetadata{PhoneNumberID: "1234567890"},
					Statuses: []dto.StatusEvent{{
						ID:     providerMessageID,
						Status: status,
					}},
				},
			}},
		}},
	}
}

func inboundPayload(from, body string) *dto.WebhookPayload {
	return &dto.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []dto.WebhookEntry{{
			Changes: []dto.WebhookChange{{
				Field: "messages",
				Value: dto.WebhookValue{
					Metadata: dto.WebhookMetadata{PhoneNumberID: "1234567890"},
					Messages: []dto.InboundMessage{{
						From: from,
						ID:   "wamid.inbound-1",
						Type: "text",
						Text: &dto.InboundText{Body: body},
					}},
				},
			}},
		}},
	}
}

func TestHandleEventsStatusAdvancesItem(t *testing.T) {
	item := &models.CampaignItem{
		ID:                1,
		CampaignID:        5,
		Status:            models.ItemStatusSent,
		ProviderMessageID: utils.ToPtr("wamid.abc"),
	}
	campaigns := &stubCampaignRepo{campaigns: map[string]*models.Campaign{}}
	items := &stubItemRepo{item: item}
	flow := newTestWebhookFlow(campaigns, items, &stubMessageRepo{}, &stubContactRepo{})

	ack, err := flow.HandleEvents(context.Background(), statusPayload("wamid.abc", "delivered"))
	require.NoError(t, err)

	assert.Equal(t, 1, ack.Processed)
	assert.Zero(t, ack.Ignored)
	assert.Equal(t, models.ItemStatusDelivered, item.Status)
}

func TestHandleEventsStatusNeverRegresses(t *testing.T) {
	tests := []struct {
		name     string
		current  models.ItemStatus
		incoming string
	}{
		{"delivered on read item", models.ItemStatusRead, "delivered"},
		{"sent on delivered item", models.ItemStatusDelivered, "sent"},
		{"failed on sent item", models.ItemStatusSent, "failed"},
		{"re-delivered event is a no-op", models.ItemStatusDelivered, "delivered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &models.CampaignItem{
				ID:                1,
				CampaignID:        5,
				Status:            tt.current,
				ProviderMessageID: utils.ToPtr("wamid.abc"),
			}
			items := &stubItemRepo{item: item}
			flow := newTestWebhookFlow(&stubCampaignRepo{}, items, &stubMessageRepo{}, &stubContactRepo{})

			ack, err := flow.HandleEvents(context.Background(), statusPayload("wamid.abc", tt.incoming))
			require.NoError(t, err)

			assert.Equal(t, 1, ack.Processed)
			assert.Equal(t, tt.current, item.Status, "status must not move")
		})
	}
}

func TestHandleEventsUnknownStatusIgnored(t *testing.T) {
	flow := newTestWebhookFlow(&stubCampaignRepo{}, &stubItemRepo{}, &stubMessageRepo{}, &stubContactRepo{})

	ack, err := flow.HandleEvents(context.Background(), statusPayload("wamid.abc", "teleported"))
	require.NoError(t, err, "one bad event must not fail the envelope")

	assert.Zero(t, ack.Processed)
	assert.Equal(t, 1, ack.Ignored)
}

func TestHandleEventsStatusForUnknownMessage(t *testing.T) {
	// Single sends have no campaign item; the event is still acknowledged
	flow := newTestWebhookFlow(&stubCampaignRepo{}, &stubItemRepo{}, &stubMessageRepo{}, &stubContactRepo{})

	ack, err := flow.HandleEvents(context.Background(), statusPayload("wamid.unknown", "delivered"))
	require.NoError(t, err)
	assert.Equal(t, 1, ack.Processed)
}

func TestHandleEventsInboundOptOut(t *testing.T) {
	contacts := &stubContactRepo{contacts: map[string]*models.Contact{}}
	messages := &stubMessageRepo{}
	flow := newTestWebhookFlow(&stubCampaignRepo{}, &stubItemRepo{}, messages, contacts)

	ack, err := flow.HandleEvents(context.Background(), inboundPayload("5511912345678", "Por favor, PARAR"))
	require.NoError(t, err)

	assert.Equal(t, 1, ack.Processed)
	assert.Equal(t, []string{"5511912345678"}, contacts.optedOut)

	// The inbound message lands on the audit log
	require.Len(t, messages.saved, 1)
	assert.Equal(t, models.MessageDirectionInbound, messages.saved[0].Direction)
	require.NotNil(t, messages.saved[0].Body)
	assert.Equal(t, "Por favor, PARAR", *messages.saved[0].Body)
}

func TestHandleEventsInboundWithoutKeyword(t *testing.T) {
	contacts := &stubContactRepo{contacts: map[string]*models.Contact{}}
	flow := newTestWebhookFlow(&stubCampaignRepo{}, &stubItemRepo{}, &stubMessageRepo{}, contacts)

	ack, err := flow.HandleEvents(context.Background(), inboundPayload("5511912345678", "obrigado!"))
	require.NoError(t, err)

	assert.Equal(t, 1, ack.Processed)
	assert.Empty(t, contacts.optedOut)
}

func TestHandleEventsNilPayload(t *testing.T) {
	flow := newTestWebhookFlow(&stubCampaignRepo{}, &stubItemRepo{}, &stubMessageRepo{}, &stubContactRepo{})

	_, err := flow.HandleEvents(context.Background(), nil)
	assert.Error(t, err)
}

func TestMatchOptOutKeyword(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		matched     bool
		wantKeyword string
	}{
		{"plain stop", "STOP", true, "stop"},
		{"portuguese polite", "Por favor, PARAR", true, "parar"},
		{"keyword inside a sentence", "quero cancelar tudo", true, "cancelar"},
		{"unsubscribe", "please unsubscribe me", true, "unsubscribe"},
		{"opt out with space", "I want to OPT OUT now", true, "opt out"},
		{"spanish baja", "dar de BAJA", true, "baja"},
		{"ordinary reply", "obrigado pela mensagem", false, ""},
		{"empty text", "", false, ""},
		// Substring matching false-positives are accepted behavior
		{"substring false positive", "vou parar na loja", true, "parar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, keyword := matchOptOutKeyword(tt.text)
			assert.Equal(t, tt.matched, matched)
			assert.Equal(t, tt.wantKeyword, keyword)
		})
	}
}

func TestExtractInboundText(t *testing.T) {
	t.Run("body wins over everything", func(t *testing.T) {
		text := extractInboundText(dto.InboundMessage{
			Text:   &dto.InboundText{Body: "body text"},
			Button: &dto.InboundButton{Text: "button text"},
		})
		assert.Equal(t, "body text", text)
	})

	t.Run("button text when no body", func(t *testing.T) {
		text := extractInboundText(dto.InboundMessage{
			Button: &dto.InboundButton{Text: "Parar mensagens"},
		})
		assert.Equal(t, "Parar mensagens", text)
	})

	t.Run("interactive button reply title", func(t *testing.T) {
		text := extractInboundText(dto.InboundMessage{
			Interactive: &dto.InboundInteractive{
				ButtonReply: &dto.InboundReply{Title: "Cancelar"},
			},
		})
		assert.Equal(t, "Cancelar", text)
	})

	t.Run("interactive list reply title", func(t *testing.T) {
		text := extractInboundText(dto.InboundMessage{
			Interactive: &dto.InboundInteractive{
				ListReply: &dto.InboundReply{Title: "Sair da lista"},
			},
		})
		assert.Equal(t, "Sair da lista", text)
	})

	t.Run("no text anywhere", func(t *testing.T) {
		assert.Empty(t, extractInboundText(dto.InboundMessage{Type: "image"}))
	})
}
