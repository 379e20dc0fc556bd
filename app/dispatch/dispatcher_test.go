package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveline/waveline/app/services"
	"github.com/waveline/waveline/models"
)

// stubContactRepo satisfies repository.ContactRepository with canned contacts.
type stubContactRepo struct {
	contacts map[string]*models.Contact

	// byAddrFails makes the next N ByAddress calls return byAddrErr
	byAddrErr   error
	byAddrFails int
	byAddrCalls int

	touched []string
}

func newStubContactRepo(contacts ...*models.Contact) *stubContactRepo {
	m := make(map[string]*models.Contact)
	for _, c := range contacts {
		m[c.Address] = c
	}
	return &stubContactRepo{contacts: m}
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
	s.byAddrCalls++
	if s.byAddrCalls <= s.byAddrFails {
		return nil, s.byAddrErr
	}
	return s.contacts[address], nil
}

func (s *stubContactRepo) UpsertOptOut(ctx context.Context, address, reason string, at time.Time) error {
	return nil
}

func (s *stubContactRepo) ClearOptOut(ctx context.Context, address string) error { return nil }

func (s *stubContactRepo) TouchLastMessageSentAt(ctx context.Context, address string, at time.Time) error {
	s.touched = append(s.touched, address)
	return nil
}

func testDispatcher(client services.WhatsAppClient, contacts *stubContactRepo) *Dispatcher {
	d := NewDispatcher(client, contacts)
	// Keep retry waits out of test wall time
	d.Backoff = []time.Duration{time.Millisecond}
	return d
}

func testTemplate() *models.Template {
	return &models.Template{
		ID:           7,
		Name:         "order_update",
		LanguageCode: "pt_BR",
		IsActive:     true,
		Structure: models.TemplateStructure{
			BodyPlaceholders: []models.Placeholder{{Index: 1, Type: models.PlaceholderTypeText}},
		},
		Mappings: models.TemplateMappings{
			"body_1": {Source: models.MappingSourceColumn, Value: "name"},
		},
	}
}

func testItem(recipient string) *models.CampaignItem {
	return &models.CampaignItem{
		CampaignID: 1,
		Recipient:  recipient,
		Params:     models.ItemParams{"name": "João"},
		Status:     models.ItemStatusPending,
	}
}

func TestDispatchSuccess(t *testing.T) {
	mock := services.NewMockWhatsAppClient()
	contacts := newStubContactRepo()
	d := testDispatcher(mock, contacts)

	outcome, err := d.Dispatch(context.Background(), testItem("+55 11 91234-5678"), testTemplate(), &models.Channel{ID: 1})
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, models.ItemStatusSent, outcome.Status)
	assert.Equal(t, "wamid.mock-1", outcome.ProviderMessageID)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Empty(t, outcome.Commands)
	// Session window bookkeeping runs on the normalized address
	assert.Equal(t, []string{"5511912345678"}, contacts.touched)
}

func TestDispatchInvalidAddress(t *testing.T) {
	mock := services.NewMockWhatsAppClient()
	d := testDispatcher(mock, newStubContactRepo())

	outcome, err := d.Dispatch(context.Background(), testItem("123"), testTemplate(), &models.Channel{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, models.ItemStatusFailed, outcome.Status)
	assert.Equal(t, CodeInvalidAddress, outcome.ErrorCode)
	assert.Equal(t, 0, outcome.Attempts)
	assert.Zero(t, mock.SentCount(), "invalid address must never reach the provider")
}

func TestDispatchOptedOutContact(t *testing.T) {
	mock := services.NewMockWhatsAppClient()
	contacts := newStubContactRepo(&models.Contact{Address: "5511912345678", OptOut: true})
	d := testDispatcher(mock, contacts)

	outcome, err := d.Dispatch(context.Background(), testItem("5511912345678"), testTemplate(), &models.Channel{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, models.ItemStatusFailed, outcome.Status)
	assert.Equal(t, CodeOptOut, outcome.ErrorCode)
	assert.Zero(t, mock.SentCount(), "opted-out contact must never reach the provider")
}

func TestDispatchSessionWindowExpired(t *testing.T) {
	mock := services.NewMockWhatsAppClient()
	stale := time.Now().UTC().Add(-30 * time.Hour)
	contacts := newStubContactRepo(&models.Contact{Address: "5511912345678", LastMessageSentAt: &stale})
	d := testDispatcher(mock, contacts)

	outcome, err := d.Dispatch(context.Background(), testItem("5511912345678"), testTemplate(), &models.Channel{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, models.ItemStatusFailed, outcome.Status)
	assert.Equal(t, CodeSessionWindowExpired, outcome.ErrorCode)
	assert.Zero(t, mock.SentCount())
}

func TestDispatchRetryBudgetExhausted(t *testing.T) {
	var calls int
	mock := services.NewMockWhatsAppClient()
	mock.SendTemplateFunc = func(ctx context.Context, channel *models.Channel, recipient, templateName, languageCode string, components []services.TemplateComponent) (string, error) {
		calls++
		return "", &services.ProviderError{Code: 130429, Message: "rate limit hit"}
	}
	d := testDispatcher(mock, newStubContactRepo())

	outcome, err := d.Dispatch(context.Background(), testItem("5511912345678"), testTemplate(), &models.Channel{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, models.ItemStatusFailed, outcome.Status)
	assert.Equal(t, "130429", outcome.ErrorCode)
	assert.Equal(t, d.MaxRetries+1, calls, "retryable failures get the full attempt budget")
	assert.Equal(t, d.MaxRetries+1, outcome.Attempts)
}

func TestDispatchRetryThenSuccess(t *testing.T) {
	var calls int
	mock := services.NewMockWhatsAppClient()
	mock.SendTemplateFunc = func(ctx context.Context, channel *models.Channel, recipient, templateName, languageCode string, components []services.TemplateComponent) (string, error) {
		calls++
		if calls < 3 {
			return "", &services.ProviderError{Code: 2, Message: "service temporarily unavailable"}
		}
		return "wamid.retry-ok", nil
	}
	d := testDispatcher(mock, newStubContactRepo())

	outcome, err := d.Dispatch(context.Background(), testItem("5511912345678"), testTemplate(), &models.Channel{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, models.ItemStatusSent, outcome.Status)
	assert.Equal(t, "wamid.retry-ok", outcome.ProviderMessageID)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestDispatchPermanentErrorNoRetry(t *testing.T) {
	var calls int
	mock := services.NewMockWhatsAppClient()
	mock.SendTemplateFunc = func(ctx context.Context, channel *models.Channel, recipient, templateName, languageCode string, components []services.TemplateComponent) (string, error) {
		calls++
		return "", &services.ProviderError{Code: 131026, Message: "message undeliverable"}
	}
	d := testDispatcher(mock, newStubContactRepo())

	outcome, err := d.Dispatch(context.Background(), testItem("5511912345678"), testTemplate(), &models.Channel{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, models.ItemStatusFailed, outcome.Status)
	assert.Equal(t, "131026", outcome.ErrorCode)
	assert.Equal(t, 1, calls, "permanent failures must not be retried")
}

func TestDispatchTemplatePauseEmitsCommand(t *testing.T) {
	mock := services.NewMockWhatsAppClient()
	mock.SendTemplateFunc = func(ctx context.Context, channel *models.Channel, recipient, templateName, languageCode string, components []services.TemplateComponent) (string, error) {
		return "", &services.ProviderError{Code: 132015, Message: "template paused"}
	}
	d := testDispatcher(mock, newStubContactRepo())

	outcome, err := d.Dispatch(context.Background(), testItem("5511912345678"), testTemplate(), &models.Channel{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, models.ItemStatusFailed, outcome.Status)
	assert.Equal(t, "132015", outcome.ErrorCode)
	require.Len(t, outcome.Commands, 1)
	assert.Equal(t, CommandDeactivateTemplate, outcome.Commands[0].Kind)
	assert.Equal(t, uint(7), outcome.Commands[0].TemplateID)
}

func TestDispatchCancellationAbandonsItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := services.NewMockWhatsAppClient()
	mock.SendTemplateFunc = func(ctx context.Context, channel *models.Channel, recipient, templateName, languageCode string, components []services.TemplateComponent) (string, error) {
		cancel()
		return "", errors.New("request aborted")
	}
	d := testDispatcher(mock, newStubContactRepo())

	outcome, err := d.Dispatch(ctx, testItem("5511912345678"), testTemplate(), &models.Channel{ID: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, outcome, "an abandoned item has no outcome to persist")
}

func TestDispatchContactLookupFailure(t *testing.T) {
	mock := services.NewMockWhatsAppClient()
	contacts := newStubContactRepo()
	contacts.byAddrErr = errors.New("connection reset")
	contacts.byAddrFails = 2
	d := testDispatcher(mock, contacts)

	outcome, err := d.Dispatch(context.Background(), testItem("5511912345678"), testTemplate(), &models.Channel{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, models.ItemStatusFailed, outcome.Status)
	assert.Equal(t, CodeInternalError, outcome.ErrorCode)
	assert.Equal(t, 2, contacts.byAddrCalls, "lookup gets one backoff retry before failing")
	assert.Zero(t, mock.SentCount())
}

func TestDispatchContactLookupRetryThenSuccess(t *testing.T) {
	mock := services.NewMockWhatsAppClient()
	contacts := newStubContactRepo()
	contacts.byAddrErr = errors.New("connection reset")
	contacts.byAddrFails = 1
	d := testDispatcher(mock, contacts)

	outcome, err := d.Dispatch(context.Background(), testItem("5511912345678"), testTemplate(), &models.Channel{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, models.ItemStatusSent, outcome.Status)
	assert.Equal(t, 2, contacts.byAddrCalls)
	assert.Equal(t, int64(1), mock.SentCount(), "a transient lookup blip must not block the send")
}

func TestDispatchInfrastructureErrorRetriedOnce(t *testing.T) {
	var calls int
	mock := services.NewMockWhatsAppClient()
	mock.SendTemplateFunc = func(ctx context.Context, channel *models.Channel, recipient, templateName, languageCode string, components []services.TemplateComponent) (string, error) {
		calls++
		return "", errors.New("dial tcp: connection refused")
	}
	d := testDispatcher(mock, newStubContactRepo())

	outcome, err := d.Dispatch(context.Background(), testItem("5511912345678"), testTemplate(), &models.Channel{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, models.ItemStatusFailed, outcome.Status)
	assert.Equal(t, CodeInternalError, outcome.ErrorCode)
	assert.Equal(t, 2, calls, "infrastructure errors get a single retry, not the provider budget")
	assert.Equal(t, 2, outcome.Attempts)
}

func TestDispatchTemplatePauseUnderGenericCode(t *testing.T) {
	var calls int
	mock := services.NewMockWhatsAppClient()
	mock.SendTemplateFunc = func(ctx context.Context, channel *models.Channel, recipient, templateName, languageCode string, components []services.TemplateComponent) (string, error) {
		calls++
		return "", &services.ProviderError{Code: 131026, Subcode: 2494010, Message: "Template is paused"}
	}
	d := testDispatcher(mock, newStubContactRepo())

	outcome, err := d.Dispatch(context.Background(), testItem("5511912345678"), testTemplate(), &models.Channel{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, models.ItemStatusFailed, outcome.Status)
	assert.Equal(t, 1, calls)
	require.Len(t, outcome.Commands, 1)
	assert.Equal(t, CommandDeactivateTemplate, outcome.Commands[0].Kind)
	assert.Equal(t, uint(7), outcome.Commands[0].TemplateID)
}
