package dispatch

import (
	"time"

	"github.com/waveline/waveline/models"
	"github.com/waveline/waveline/utils"
)

// GateResult is the outcome of an eligibility check.
type GateResult struct {
	Eligible bool
	Reason   string
}

// CheckEligibility decides whether a contact may be messaged right now.
// Opt-out wins over everything; after that, a contact whose last outbound
// message is older than the session window is out of reach for session
// messaging. A recipient with no contact record at all is eligible.
// No side effects.
func CheckEligibility(contact *models.Contact, now time.Time) GateResult {
	if contact == nil {
		return GateResult{Eligible: true}
	}
	if contact.OptOut {
		return GateResult{Eligible: false, Reason: CodeOptOut}
	}
	if contact.LastMessageSentAt != nil && now.Sub(*contact.LastMessageSentAt) > utils.SessionWindow {
		return GateResult{Eligible: false, Reason: CodeSessionWindowExpired}
	}
	return GateResult{Eligible: true}
}
