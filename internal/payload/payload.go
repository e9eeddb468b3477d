package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/painelvendas/ingest-service/internal/models"
	pkgerrors "github.com/painelvendas/ingest-service/pkg/errors"
)

// Webhook is the wire shape accepted on POST /webhook. Amount stays raw
// because upstream gateways send it as either a JSON number or a string.
type Webhook struct {
	Event            string                   `json:"event,omitempty"`
	Type             models.TransactionType   `json:"type" validate:"required,oneof=boleto pix cartao"`
	Amount           json.RawMessage          `json:"amount" validate:"required"`
	ExternalID       string                   `json:"external_id,omitempty"`
	Status           models.TransactionStatus `json:"status,omitempty"`
	Description      string                   `json:"description,omitempty"`
	CustomerName     string                   `json:"customer_name,omitempty"`
	CustomerEmail    string                   `json:"customer_email,omitempty"`
	CustomerPhone    string                   `json:"customer_phone,omitempty"`
	CustomerDocument string                   `json:"customer_document,omitempty"`
	BoletoURL        string                   `json:"boleto_url,omitempty"`
	Metadata         map[string]any           `json:"metadata,omitempty"`
	PaidAt           string                   `json:"paid_at,omitempty"`
}

var validate = validator.New()

// Validate checks the required-field contract and maps validator failures to
// the sentinel errors the handler translates into HTTP 400.
func Validate(w Webhook) error {
	// A literal JSON null is a non-empty RawMessage, so the required tag
	// alone would let it through.
	if bytes.Equal(w.Amount, []byte("null")) {
		return pkgerrors.ErrMissingAmount
	}

	err := validate.Struct(w)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			switch fe.Field() {
			case "Type":
				return fmt.Errorf("%w: %q", pkgerrors.ErrInvalidTransactionType, w.Type)
			case "Amount":
				return pkgerrors.ErrMissingAmount
			}
		}
	}
	return fmt.Errorf("payload validation: %w", err)
}
