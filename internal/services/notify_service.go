package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/painelvendas/ingest-service/internal/infrastructure/observability"
	"github.com/painelvendas/ingest-service/internal/infrastructure/push"
	"github.com/painelvendas/ingest-service/internal/models"
	"github.com/painelvendas/ingest-service/internal/repository"
	pkgerrors "github.com/painelvendas/ingest-service/pkg/errors"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var typeLabels = map[models.TransactionType]string{
	models.TypeBoleto: "Boleto",
	models.TypePix:    "PIX",
	models.TypeCartao: "Cartão",
}

var statusLabels = map[models.TransactionStatus]string{
	models.StatusGerado:    "gerado",
	models.StatusPago:      "pago",
	models.StatusPendente:  "pendente",
	models.StatusCancelado: "cancelado",
	models.StatusExpirado:  "expirado",
}

// NotifyService broadcasts a transaction event to every registered push
// endpoint. Notify never fails the caller; all delivery errors are contained.
type NotifyService interface {
	Notify(ctx context.Context, sum models.TransactionSummary)
}

type notifyService struct {
	endpointRepo repository.PushEndpointRepository
	transport    push.Transport
}

// NewNotifyService builds the fan-out dispatcher. A nil transport means push
// credentials are not configured and Notify becomes a logged no-op.
func NewNotifyService(endpointRepo repository.PushEndpointRepository, transport push.Transport) *notifyService {
	return &notifyService{endpointRepo: endpointRepo, transport: transport}
}

func (n *notifyService) Notify(ctx context.Context, sum models.TransactionSummary) {
	if n.transport == nil {
		slog.Info("push transport not configured, skipping fan-out")
		return
	}

	msg, err := renderMessage(sum)
	if err != nil {
		slog.Error("failed to render push message", "error", err)
		return
	}

	endpoints, err := n.endpointRepo.List(ctx)
	if err != nil {
		slog.Error("failed to load push endpoints", "error", err)
		return
	}
	if len(endpoints) == 0 {
		return
	}

	var (
		wg   sync.WaitGroup
		sent atomic.Int64
	)
	for _, ep := range endpoints {
		wg.Add(1)
		go func(ep models.PushEndpoint) {
			defer wg.Done()
			err := n.transport.Send(ctx, ep, msg)
			switch {
			case err == nil:
				observability.PushDeliveries.WithLabelValues("sent").Inc()
				sent.Add(1)
			case stderrors.Is(err, pkgerrors.ErrEndpointGone):
				observability.PushDeliveries.WithLabelValues("gone").Inc()
				slog.Warn("push endpoint gone, removing", "user_id", ep.UserID)
				if delErr := n.endpointRepo.DeleteByEndpoint(ctx, ep.Endpoint); delErr != nil {
					slog.Error("failed to remove dead push endpoint", "user_id", ep.UserID, "error", delErr)
				}
			default:
				observability.PushDeliveries.WithLabelValues("failed").Inc()
				slog.Error("push delivery failed", "user_id", ep.UserID, "error", err)
			}
		}(ep)
	}
	wg.Wait()

	slog.Info("push fan-out complete", "sent", sent.Load(), "endpoints", len(endpoints))
}

func renderMessage(sum models.TransactionSummary) ([]byte, error) {
	title := fmt.Sprintf("%s %s", typeLabels[sum.Type], statusLabels[sum.Status])
	var body string
	if sum.CustomerName != "" {
		body = fmt.Sprintf("%s - %s", sum.CustomerName, formatBRL(sum.Amount))
	} else {
		body = fmt.Sprintf("Valor: %s", formatBRL(sum.Amount))
	}
	return json.Marshal(map[string]string{"title": title, "body": body})
}

var brlPrinter = message.NewPrinter(language.BrazilianPortuguese)

func formatBRL(v float64) string {
	return brlPrinter.Sprintf("%v", currency.Symbol(currency.BRL.Amount(v)))
}
