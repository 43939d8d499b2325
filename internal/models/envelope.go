package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedEnvelope is returned when a retry envelope can't be decoded
var ErrMalformedEnvelope = errors.New("malformed retry envelope")

// A RetryEnvelope wraps a failed delivery report on its way through a retry topic.
// FirstSeen is set once and is carried unchanged across republishes
type RetryEnvelope struct {
	Attempts            int       `json:"Attempts"`
	FirstSeen           time.Time `json:"FirstSeen"`
	LastAttempt         time.Time `json:"LastAttempt"`
	SendOperationResult string    `json:"SendOperationResult"`
}

// NewRetryEnvelope creates an envelope for a report that failed for the first time
func NewRetryEnvelope(payload []byte, now time.Time) RetryEnvelope {
	return RetryEnvelope{
		Attempts:            0,
		FirstSeen:           now,
		LastAttempt:         now,
		SendOperationResult: string(payload),
	}
}

// Next returns the envelope to republish after one more failed attempt
func (e RetryEnvelope) Next(now time.Time) RetryEnvelope {
	next := e
	next.Attempts = e.Attempts + 1
	if !now.After(e.LastAttempt) {
		// clocks may step backwards between hosts, LastAttempt still has to move forward
		now = e.LastAttempt.Add(time.Millisecond)
	}
	next.LastAttempt = now
	return next
}

// Elapsed returns how long ago the envelope's report failed for the first time
func (e RetryEnvelope) Elapsed(now time.Time) time.Duration {
	return now.Sub(e.FirstSeen)
}

// Expired reports whether the envelope has been failing for at least threshold
func (e RetryEnvelope) Expired(now time.Time, threshold time.Duration) bool {
	return e.Elapsed(now) >= threshold
}

// Encode serializes the envelope into its wire form
func (e RetryEnvelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeRetryEnvelope parses the wire form of an envelope
func DecodeRetryEnvelope(data []byte) (RetryEnvelope, error) {
	var env RetryEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return RetryEnvelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Attempts < 0 {
		return RetryEnvelope{}, fmt.Errorf("%w: negative attempts %d", ErrMalformedEnvelope, env.Attempts)
	}
	if env.FirstSeen.IsZero() {
		return RetryEnvelope{}, fmt.Errorf("%w: first seen is missing", ErrMalformedEnvelope)
	}
	if env.SendOperationResult == "" {
		return RetryEnvelope{}, fmt.Errorf("%w: payload is empty", ErrMalformedEnvelope)
	}
	return env, nil
}
