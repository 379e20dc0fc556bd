package dispatch

import (
	"errors"
	"strconv"
	"strings"

	"github.com/waveline/waveline/app/services"
)

// ErrorClass buckets a send failure for retry and recovery decisions.
type ErrorClass int

const (
	// ClassRetryable covers rate limits, transient service trouble and
	// permission hiccups that tend to clear on their own.
	ClassRetryable ErrorClass = iota
	// ClassPermanent covers failures a retry cannot fix.
	ClassPermanent
	// ClassTemplatePause is the permanent subclass where the provider paused
	// or disabled the template; the whole template must be deactivated.
	ClassTemplatePause
	// ClassInfrastructure covers network errors and unexpected failures on
	// our side of the wire; retried once on the same backoff policy.
	ClassInfrastructure
)

// Local failure codes for items that never reach the provider.
const (
	CodeInvalidAddress       = "INVALID_ADDRESS"
	CodeOptOut               = "OPT_OUT"
	CodeSessionWindowExpired = "SESSION_WINDOW_EXPIRED"
	CodeRenderError          = "RENDER_ERROR"
	CodeTemplateInactive     = "TEMPLATE_INACTIVE"
	CodeInternalError        = "INTERNAL_ERROR"
)

// providerErrorClasses is the exhaustive classification of provider error
// codes this system reacts to. Codes absent from the map are treated as
// permanent so an unknown failure never loops the retry budget for nothing.
var providerErrorClasses = map[int]ErrorClass{
	// Rate limiting and throughput
	130429: ClassRetryable, // rate limit hit
	131048: ClassRetryable, // spam rate limit, pacing too aggressive
	131056: ClassRetryable, // pair rate limit (same recipient too often)
	80007:  ClassRetryable, // account-level rate limit
	133016: ClassRetryable, // registration/deregistration frequency cap

	// Transient service trouble
	1:      ClassRetryable, // unknown API error
	2:      ClassRetryable, // service temporarily unavailable
	131000: ClassRetryable, // generic "something went wrong"
	131016: ClassRetryable, // service overloaded

	// Permission hiccups that clear after token refresh on the provider side
	3: ClassRetryable,

	// Permanent recipient or request failures
	100:    ClassPermanent, // invalid parameter
	10:     ClassPermanent, // permission denied
	190:    ClassPermanent, // access token expired
	368:    ClassPermanent, // account temporarily blocked for policy violation
	131026: ClassPermanent, // message undeliverable (blocked or not on the platform)
	131031: ClassPermanent, // account locked
	131047: ClassPermanent, // re-engagement required, session window closed
	131051: ClassPermanent, // unsupported message type

	// Permanent template failures
	132000: ClassPermanent, // parameter count mismatch
	132001: ClassPermanent, // template does not exist
	132005: ClassPermanent, // hydrated text too long
	132007: ClassPermanent, // template format policy violation
	132012: ClassPermanent, // parameter format mismatch

	// Template paused/disabled by the provider's quality system
	132015: ClassTemplatePause,
	132016: ClassTemplatePause,
}

// templatePauseSubcodes are pause signals the provider delivers under a
// generic top-level code; 2494010 is the documented "template is paused"
// subcode.
var templatePauseSubcodes = map[int]struct{}{
	2494010: {},
}

// isTemplatePause reports whether the error carries the template-pause
// signature regardless of its top-level code: the pause subcode, or message
// text saying the template was paused or disabled.
func isTemplatePause(perr *services.ProviderError) bool {
	if _, ok := templatePauseSubcodes[perr.Subcode]; ok {
		return true
	}
	text := strings.ToLower(perr.Message + " " + perr.Details)
	if !strings.Contains(text, "template") {
		return false
	}
	return strings.Contains(text, "paused") || strings.Contains(text, "disabled")
}

// Classification is the dispatch-relevant reading of a send failure.
type Classification struct {
	Code    string
	Message string
	Class   ErrorClass
}

// Retryable reports whether the failure is worth another in-dispatch attempt.
func (c Classification) Retryable() bool {
	return c.Class == ClassRetryable || c.Class == ClassInfrastructure
}

// Classify maps a provider call error onto the error taxonomy. Anything that
// is not a structured provider error counts as infrastructure trouble.
func Classify(err error) Classification {
	var perr *services.ProviderError
	if errors.As(err, &perr) {
		class, known := providerErrorClasses[perr.Code]
		if !known {
			class = ClassPermanent
		}
		if class != ClassTemplatePause && isTemplatePause(perr) {
			class = ClassTemplatePause
		}
		return Classification{
			Code:    strconv.Itoa(perr.Code),
			Message: perr.Message,
			Class:   class,
		}
	}
	return Classification{
		Code:    CodeInternalError,
		Message: err.Error(),
		Class:   ClassInfrastructure,
	}
}
