package models

import "time"

// Transaction is the canonical record of a payment lifecycle event. External
// gateways identify it by ExternalID when they supply one; ExternalID is the
// idempotency key for webhook reconciliation.
type Transaction struct {
	ID               string            `json:"id"`
	ExternalID       string            `json:"external_id,omitempty"`
	Type             TransactionType   `json:"type"`
	Status           TransactionStatus `json:"status"`
	Amount           float64           `json:"amount"`
	Description      string            `json:"description,omitempty"`
	CustomerName     string            `json:"customer_name,omitempty"`
	CustomerEmail    string            `json:"customer_email,omitempty"`
	CustomerPhone    string            `json:"customer_phone,omitempty"`
	CustomerDocument string            `json:"customer_document,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	WebhookSource    string            `json:"webhook_source"`
	PaidAt           *time.Time        `json:"paid_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type TransactionType string

const (
	TypeBoleto TransactionType = "boleto"
	TypePix    TransactionType = "pix"
	TypeCartao TransactionType = "cartao"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeBoleto, TypePix, TypeCartao:
		return true
	}
	return false
}

type TransactionStatus string

const (
	StatusGerado    TransactionStatus = "gerado"
	StatusPago      TransactionStatus = "pago"
	StatusPendente  TransactionStatus = "pendente"
	StatusCancelado TransactionStatus = "cancelado"
	StatusExpirado  TransactionStatus = "expirado"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusGerado, StatusPago, StatusPendente, StatusCancelado, StatusExpirado:
		return true
	}
	return false
}

// TransactionUpdate is the partial mutation applied to an existing row by a
// repeat webhook delivery. Nil pointer/map fields are left untouched;
// descriptive fields (amount, type, customer identity) are never re-written
// after the first delivery. Metadata replaces the stored value wholesale when
// non-nil, so an empty non-nil map overwrites it with {} while nil preserves
// it.
type TransactionUpdate struct {
	Status   TransactionStatus
	PaidAt   *time.Time
	Metadata map[string]any
}
