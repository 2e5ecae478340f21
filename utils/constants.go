package utils

import (
	"time"
)

// Messaging policy constants
const (
	// MessagingWindow is the platform's standard contact window: free-form
	// messages may only be sent within this duration of the recipient's last
	// inbound message.
	MessagingWindow = 24 * time.Hour
)

// Dispatch defaults
const (
	// DefaultBatchSize is the number of recipients dispatched per batch.
	DefaultBatchSize = 50

	// DefaultBatchDelay is the fixed pause between consecutive batches.
	DefaultBatchDelay = 100 * time.Millisecond

	// DefaultPageHourlyCap is the per-page send ceiling per clock hour.
	DefaultPageHourlyCap = 200

	// DefaultMaxSendAttempts bounds retries for transient transport errors.
	DefaultMaxSendAttempts = 4
)

// Scheduler defaults
const (
	// DefaultSchedulerInterval is the pause between activation sweeps.
	DefaultSchedulerInterval = 15 * time.Second

	// DefaultSchedulerClaimLimit caps how many campaigns one sweep picks up.
	DefaultSchedulerClaimLimit = 20
)
