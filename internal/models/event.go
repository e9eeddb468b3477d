package models

import "time"

const (
	EventTransactionCreated = "transaction_created"
	EventTransactionUpdated = "transaction_updated"
)

// TransactionEvent is published to Kafka after a successful reconciliation so
// downstream consumers (dashboards, exports) can react without polling.
type TransactionEvent struct {
	EventType     string            `json:"event_type"`
	TransactionID string            `json:"transaction_id"`
	ExternalID    string            `json:"external_id,omitempty"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	Amount        float64           `json:"amount"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// TransactionSummary is the slice of a reconciled transaction the push
// fan-out needs to render a notification.
type TransactionSummary struct {
	Type         TransactionType
	Status       TransactionStatus
	Amount       float64
	CustomerName string
}
