package service

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/painelvendas/ingest-service/internal/infrastructure/kafka"
	"github.com/painelvendas/ingest-service/internal/infrastructure/redis"
	"github.com/painelvendas/ingest-service/internal/models"
	"github.com/painelvendas/ingest-service/internal/payload"
	"github.com/painelvendas/ingest-service/internal/repository"
	pkgerrors "github.com/painelvendas/ingest-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// ReconcileResult reports whether an inbound delivery created a new
// transaction or advanced an existing one.
type ReconcileResult struct {
	TransactionID string
	Action        string
}

type IngestService interface {
	Ingest(ctx context.Context, wh payload.Webhook, source string) (*ReconcileResult, error)
}

type ingestService struct {
	transactionRepo repository.TransactionRepository
	cache           redis.TransactionCache
	producer        kafka.EventProducer
	notifier        NotifyService
}

// NewIngestService builds the webhook reconciler. cache and producer may be
// nil; both are optional collaborators.
func NewIngestService(
	transactionRepo repository.TransactionRepository,
	cache redis.TransactionCache,
	producer kafka.EventProducer,
	notifier NotifyService,
) *ingestService {
	return &ingestService{
		transactionRepo: transactionRepo,
		cache:           cache,
		producer:        producer,
		notifier:        notifier,
	}
}

func (s *ingestService) Ingest(ctx context.Context, wh payload.Webhook, source string) (*ReconcileResult, error) {
	tracer := otel.Tracer("ingest-service")
	ctx, span := tracer.Start(ctx, "Ingest")
	defer span.End()

	if err := payload.Validate(wh); err != nil {
		span.SetStatus(codes.Error, "payload validation failed")
		slog.Warn("webhook payload rejected", "external_id", wh.ExternalID, "error", err)
		return nil, err
	}

	amount, err := payload.ParseAmount(wh.Amount)
	if err != nil {
		span.SetStatus(codes.Error, "unparseable amount")
		slog.Warn("webhook amount rejected", "external_id", wh.ExternalID, "error", err)
		return nil, err
	}

	status := payload.InferStatus(wh.Event, wh.Status)
	paidAt := resolvePaidAt(wh.PaidAt, status)
	if source == "" {
		source = "unknown"
	}

	span.SetAttributes(
		attribute.String("external_id", wh.ExternalID),
		attribute.String("type", string(wh.Type)),
		attribute.String("status", string(status)),
	)

	var (
		tx     *models.Transaction
		action string
	)

	if wh.ExternalID != "" {
		existing, lookupErr := s.lookup(ctx, wh.ExternalID)
		switch {
		case lookupErr == nil && existing != nil:
			tx, err = s.applyUpdate(ctx, wh, status, paidAt)
			action = ActionUpdated
		case lookupErr == nil || stderrors.Is(lookupErr, pkgerrors.ErrTransactionNotFound):
			// A nil row with a nil error from a lookup means not found.
			tx, action, err = s.create(ctx, wh, amount, status, paidAt, source)
		default:
			span.RecordError(lookupErr)
			span.SetStatus(codes.Error, "transaction lookup failed")
			slog.Error("failed to look up transaction", "external_id", wh.ExternalID, "error", lookupErr)
			return nil, lookupErr
		}
	} else {
		tx, action, err = s.create(ctx, wh, amount, status, paidAt, source)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconciliation failed")
		return nil, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, tx); cacheErr != nil {
			slog.Warn("failed to cache transaction", "transaction_id", tx.ID, "error", cacheErr)
		}
	}

	s.publishEvent(tx, action)

	// Fan-out runs after the row is committed; its outcome never touches the
	// reconciliation result.
	s.notifier.Notify(ctx, models.TransactionSummary{
		Type:         tx.Type,
		Status:       tx.Status,
		Amount:       tx.Amount,
		CustomerName: tx.CustomerName,
	})

	span.SetAttributes(attribute.String("action", action), attribute.String("transaction_id", tx.ID))
	slog.Info("webhook reconciled", "transaction_id", tx.ID, "external_id", tx.ExternalID, "action", action, "status", tx.Status)
	return &ReconcileResult{TransactionID: tx.ID, Action: action}, nil
}

func (s *ingestService) lookup(ctx context.Context, externalID string) (*models.Transaction, error) {
	if s.cache != nil {
		tx, err := s.cache.GetByExternalID(ctx, externalID)
		if err == nil {
			return tx, nil
		}
		if !stderrors.Is(err, pkgerrors.ErrCacheMiss) {
			slog.Warn("transaction cache read failed", "external_id", externalID, "error", err)
		}
	}
	return s.transactionRepo.GetByExternalID(ctx, externalID)
}

func (s *ingestService) applyUpdate(ctx context.Context, wh payload.Webhook, status models.TransactionStatus, paidAt *time.Time) (*models.Transaction, error) {
	upd := models.TransactionUpdate{
		Status:   status,
		PaidAt:   paidAt,
		Metadata: wh.Metadata,
	}
	return s.transactionRepo.UpdateByExternalID(ctx, wh.ExternalID, upd)
}

func (s *ingestService) create(ctx context.Context, wh payload.Webhook, amount float64, status models.TransactionStatus, paidAt *time.Time, source string) (*models.Transaction, string, error) {
	tx := &models.Transaction{
		ID:               uuid.NewString(),
		ExternalID:       wh.ExternalID,
		Type:             wh.Type,
		Status:           status,
		Amount:           amount,
		Description:      wh.Description,
		CustomerName:     wh.CustomerName,
		CustomerEmail:    wh.CustomerEmail,
		CustomerPhone:    payload.NormalizePhone(wh.CustomerPhone),
		CustomerDocument: wh.CustomerDocument,
		Metadata:         buildMetadata(wh),
		WebhookSource:    source,
		PaidAt:           paidAt,
	}

	err := s.transactionRepo.Create(ctx, tx)
	if stderrors.Is(err, pkgerrors.ErrDuplicateExternalID) && wh.ExternalID != "" {
		// Lost the create race to a concurrent delivery for the same
		// external_id; the uniqueness constraint makes this safe to replay
		// as an update.
		slog.Warn("concurrent create detected, retrying as update", "external_id", wh.ExternalID)
		updated, updErr := s.applyUpdate(ctx, wh, status, paidAt)
		if updErr != nil {
			return nil, "", updErr
		}
		return updated, ActionUpdated, nil
	}
	if err != nil {
		return nil, "", err
	}
	return tx, ActionCreated, nil
}

func (s *ingestService) publishEvent(tx *models.Transaction, action string) {
	if s.producer == nil {
		return
	}

	eventType := models.EventTransactionCreated
	if action == ActionUpdated {
		eventType = models.EventTransactionUpdated
	}
	event := models.TransactionEvent{
		EventType:     eventType,
		TransactionID: tx.ID,
		ExternalID:    tx.ExternalID,
		Type:          tx.Type,
		Status:        tx.Status,
		Amount:        tx.Amount,
		OccurredAt:    time.Now().UTC(),
	}

	go func() {
		retries := 3
		for i := 0; i < retries; i++ {
			if err := s.producer.Publish(context.Background(), event); err == nil {
				return
			}
			time.Sleep(time.Second * time.Duration(i+1))
		}
		slog.Error("failed to publish transaction event after retries", "transaction_id", tx.ID, "event_type", eventType)
	}()
}

// resolvePaidAt prefers the explicit payload timestamp, falls back to now
// when the inferred status is pago, and is otherwise nil so an update leaves
// any stored paid_at untouched.
func resolvePaidAt(raw string, status models.TransactionStatus) *time.Time {
	if raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			utc := t.UTC()
			return &utc
		}
		slog.Warn("invalid paid_at in payload, ignoring", "paid_at", raw)
	}
	if status == models.StatusPago {
		now := time.Now().UTC()
		return &now
	}
	return nil
}

func buildMetadata(wh payload.Webhook) map[string]any {
	var m map[string]any
	if wh.Metadata != nil {
		m = make(map[string]any, len(wh.Metadata)+1)
		for k, v := range wh.Metadata {
			m[k] = v
		}
	}
	if wh.BoletoURL != "" {
		if m == nil {
			m = make(map[string]any, 1)
		}
		m["boleto_url"] = wh.BoletoURL
	}
	return m
}
