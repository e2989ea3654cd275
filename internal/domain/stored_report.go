package domain

import (
	"encoding/json"
	"time"
)

// StoredReport is the collector-side view of an accepted report.
type StoredReport struct {
	ID              string          `json:"id"`
	ReceivedAt      time.Time       `json:"received_at"`
	OccurredOn      time.Time       `json:"occurred_on"`
	ClassName       string          `json:"class_name"`
	Message         string          `json:"message"`
	MachineName     string          `json:"machine_name"`
	Version         string          `json:"version"`
	Payload         json.RawMessage `json:"payload"`
	StreamMessageID string          `json:"-"` // Redis stream message id, set on read
}
