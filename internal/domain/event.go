package domain

import (
	"encoding/json"
	"time"
)

// Status classifies the terminal outcome of an ingestion attempt.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessed, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// CanonicalEvent is the normalized form of a raw payload. One is stored for
// every ingestion attempt regardless of outcome; only processed events own an
// identity.
type CanonicalEvent struct {
	ID              string          `json:"id"`
	ClientID        string          `json:"client_id"`
	Metric          string          `json:"metric"`
	Amount          float64         `json:"amount"`
	Timestamp       time.Time       `json:"timestamp"`
	IdentityHash    string          `json:"identity_hash"`
	Status          Status          `json:"status"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	OriginalPayload json.RawMessage `json:"original_payload,omitempty"`
	RetryCount      int             `json:"retry_count"`
	CreatedAt       time.Time       `json:"created_at"`
	ProcessedAt     time.Time       `json:"processed_at"`
}

// IdentityRecord maps an identity hash to the event that owns it. At most one
// record exists per hash; it is written exactly once, by the ingestion attempt
// that wins the registration for that hash.
type IdentityRecord struct {
	IdentityHash string    `json:"identity_hash"`
	ClientID     string    `json:"client_id"`
	EventID      string    `json:"event_id"`
	RecordedAt   time.Time `json:"recorded_at"`
}
