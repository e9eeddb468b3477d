package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/painelvendas/ingest-service/internal/models"
	pkgerrors "github.com/painelvendas/ingest-service/pkg/errors"
)

// ParseAmount coerces a raw JSON amount (number or string) into a float.
// Strings are reduced to digits, '.' and ',' before parsing, with ',' treated
// as a decimal separator, so values like "R$ 1234,56" survive. Stripping also
// removes any sign, so a parsed string amount is always non-negative.
func ParseAmount(raw json.RawMessage) (float64, error) {
	// JSON null would unmarshal into a float64 as a no-op and read as 0.
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, pkgerrors.ErrMissingAmount
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		if num < 0 || math.IsNaN(num) || math.IsInf(num, 0) {
			return 0, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidAmount, num)
		}
		return num, nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, fmt.Errorf("%w: %s", pkgerrors.ErrInvalidAmount, raw)
	}

	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			return r
		}
		return -1
	}, str)
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	num, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", pkgerrors.ErrInvalidAmount, str)
	}
	return num, nil
}

// NormalizePhone strips a single leading '+' from a phone string.
func NormalizePhone(phone string) string {
	return strings.TrimPrefix(phone, "+")
}

// InferStatus resolves the transaction status from a free-text upstream event
// label and an optional explicit status. Event keywords win over the explicit
// field because several gateways only send a loosely named event; matching is
// case-sensitive substring on purpose, mirroring what those gateways emit.
func InferStatus(event string, explicit models.TransactionStatus) models.TransactionStatus {
	switch {
	case strings.Contains(event, "paid") || strings.Contains(event, "pago"):
		return models.StatusPago
	case strings.Contains(event, "cancel"):
		return models.StatusCancelado
	case strings.Contains(event, "expir"):
		return models.StatusExpirado
	}
	if explicit.Valid() {
		return explicit
	}
	return models.StatusGerado
}
