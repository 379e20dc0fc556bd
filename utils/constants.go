package utils

import (
	"time"
)

// Dispatch constants
const (
	// MaxRetries is the in-dispatch retry budget per item; an item whose
	// every attempt fails retryably is attempted MaxRetries+1 times total
	MaxRetries = 3

	// BatchSize is how many pending items one batch-runner pass claims
	BatchSize = 100

	// GlobalRateCeiling is the provider-wide messages/second ceiling that
	// clamps every campaign's processing_rate
	GlobalRateCeiling = 810

	// SessionWindow is the provider-imposed period after the last outbound
	// message during which template-free sends are permitted
	SessionWindow = 24 * time.Hour
)

// HTTP constants
const (
	// CORSMaxAge is how long browsers may cache preflight responses, in seconds
	CORSMaxAge = 86400
)

// RetryBackoff holds the wait before each in-dispatch retry attempt
var RetryBackoff = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}
