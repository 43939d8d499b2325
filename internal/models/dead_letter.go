package models

import (
	"time"

	"github.com/google/uuid"
)

// A DeadLetterRecord is a terminal failure kept for manual inspection
type DeadLetterRecord struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Channel        string    `json:"channel" db:"channel"`
	FirstSeen      time.Time `json:"first_seen" db:"first_seen"`
	LastAttempt    time.Time `json:"last_attempt" db:"last_attempt"`
	AttemptCount   int       `json:"attempt_count" db:"attempt_count"`
	DeliveryReport string    `json:"delivery_report" db:"delivery_report"`
	Resolved       bool      `json:"resolved" db:"resolved"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// NewDeadLetterRecord converts an expired envelope into a dead-letter record
func NewDeadLetterRecord(channel string, env RetryEnvelope, now time.Time) DeadLetterRecord {
	return DeadLetterRecord{
		ID:             uuid.New(),
		Channel:        channel,
		FirstSeen:      env.FirstSeen,
		LastAttempt:    env.LastAttempt,
		AttemptCount:   env.Attempts,
		DeliveryReport: env.SendOperationResult,
		Resolved:       false,
		CreatedAt:      now,
	}
}
