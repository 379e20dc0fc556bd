package dispatch

import (
	"context"
	"time"

	"github.com/waveline/waveline/app/services"
	"github.com/waveline/waveline/models"
	"github.com/waveline/waveline/repository"
	"github.com/waveline/waveline/utils"
)

// CommandKind is a side effect the dispatcher asks its caller to apply.
type CommandKind string

const (
	// CommandDeactivateTemplate tells the batch runner to flip the template
	// inactive so later items stop re-incurring the same pause failure.
	CommandDeactivateTemplate CommandKind = "deactivate_template"
)

// Command is an explicit, auditable side-effect request emitted alongside an
// outcome instead of the dispatcher mutating shared state itself.
type Command struct {
	Kind       CommandKind
	TemplateID uint
}

// Outcome is the terminal result of dispatching one item. Exactly one of
// the sent/failed shapes is populated.
type Outcome struct {
	Status            models.ItemStatus
	ProviderMessageID string
	ErrorCode         string
	ErrorMessage      string
	Attempts          int
	Commands          []Command
}

func failedOutcome(code, message string, attempts int) *Outcome {
	return &Outcome{
		Status:       models.ItemStatusFailed,
		ErrorCode:    code,
		ErrorMessage: message,
		Attempts:     attempts,
	}
}

// Dispatcher performs one full send attempt cycle for a campaign item:
// normalize, gate, render, call the provider, classify, retry within budget.
type Dispatcher struct {
	client   services.WhatsAppClient
	contacts repository.ContactRepository

	// MaxRetries bounds in-dispatch retries; an item is attempted at most
	// MaxRetries+1 times. Backoff holds the wait before each retry.
	MaxRetries int
	Backoff    []time.Duration

	now func() time.Time
}

func NewDispatcher(client services.WhatsAppClient, contacts repository.ContactRepository) *Dispatcher {
	return &Dispatcher{
		client:     client,
		contacts:   contacts,
		MaxRetries: utils.MaxRetries,
		Backoff:    utils.RetryBackoff,
		now:        utils.UTCNow,
	}
}

// Dispatch runs the whole pipeline for one item and returns its terminal
// outcome. A non-nil error means the attempt was abandoned mid-flight
// (cancellation); the item must be left pending for the next invocation.
// Dispatch never mutates the item itself; persisting the outcome is the
// caller's job.
func (d *Dispatcher) Dispatch(ctx context.Context, item *models.CampaignItem, tmpl *models.Template, channel *models.Channel) (*Outcome, error) {
	recipient, err := NormalizeAddress(item.Recipient)
	if err != nil {
		return failedOutcome(CodeInvalidAddress, err.Error(), 0), nil
	}

	contact, err := d.lookupContact(ctx, recipient)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return failedOutcome(CodeInternalError, err.Error(), 0), nil
	}

	if gate := CheckEligibility(contact, d.now()); !gate.Eligible {
		return failedOutcome(gate.Reason, "contact not eligible: "+gate.Reason, 0), nil
	}

	components, err := RenderComponents(tmpl, item.Params)
	if err != nil {
		return failedOutcome(CodeRenderError, err.Error(), 0), nil
	}

	return d.send(ctx, tmpl, channel, recipient, components)
}

// lookupContact reads the contact with one backoff retry. A transient store
// blip must not terminally fail an item that was never dispatched.
func (d *Dispatcher) lookupContact(ctx context.Context, recipient string) (*models.Contact, error) {
	contact, err := d.contacts.ByAddress(ctx, recipient)
	if err == nil {
		return contact, nil
	}
	if serr := sleep(ctx, d.backoffFor(0)); serr != nil {
		return nil, serr
	}
	return d.contacts.ByAddress(ctx, recipient)
}

// send issues the provider call with bounded retry and backoff. Retryable
// failures are re-attempted up to MaxRetries times; cancellation during a
// backoff wait abandons the item.
func (d *Dispatcher) send(ctx context.Context, tmpl *models.Template, channel *models.Channel, recipient string, components []services.TemplateComponent) (*Outcome, error) {
	var last Classification
	for attempt := 0; ; attempt++ {
		providerID, err := d.client.SendTemplate(ctx, channel, recipient, tmpl.Name, tmpl.LanguageCode, components)
		if err == nil {
			d.touchContact(ctx, recipient)
			return &Outcome{
				Status:            models.ItemStatusSent,
				ProviderMessageID: providerID,
				Attempts:          attempt + 1,
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		last = Classify(err)
		if last.Class == ClassTemplatePause {
			out := failedOutcome(last.Code, last.Message, attempt+1)
			out.Commands = append(out.Commands, Command{
				Kind:       CommandDeactivateTemplate,
				TemplateID: tmpl.ID,
			})
			return out, nil
		}
		retries := d.MaxRetries
		if last.Class == ClassInfrastructure {
			// Infrastructure trouble gets a single retry before surfacing
			retries = 1
		}
		if !last.Retryable() || attempt >= retries {
			return failedOutcome(last.Code, last.Message, attempt+1), nil
		}
		if err := sleep(ctx, d.backoffFor(attempt)); err != nil {
			return nil, err
		}
	}
}

func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	if len(d.Backoff) == 0 {
		return time.Second
	}
	if attempt >= len(d.Backoff) {
		return d.Backoff[len(d.Backoff)-1]
	}
	return d.Backoff[attempt]
}

// touchContact stamps last_message_sent_at after a successful send. Failure
// here must not turn a sent message into a failed item.
func (d *Dispatcher) touchContact(ctx context.Context, recipient string) {
	_ = d.contacts.TouchLastMessageSentAt(ctx, recipient, d.now())
}
