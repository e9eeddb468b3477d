package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/painelvendas/ingest-service/internal/infrastructure/observability"
	"github.com/painelvendas/ingest-service/internal/models"
	pkgerrors "github.com/painelvendas/ingest-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const uniqueViolation = "23505"

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "CreateTransaction")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateTransaction", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateTransaction").Observe(time.Since(start).Seconds())
	}()

	if tx == nil {
		err = pkgerrors.ErrNilTransaction
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return err
	}
	if !tx.Type.Valid() {
		err = fmt.Errorf("%w: %q", pkgerrors.ErrInvalidTransactionType, tx.Type)
		slog.Error("invalid transaction type", "method", "Create", "type", tx.Type, "error", err)
		return err
	}
	if !tx.Status.Valid() {
		err = fmt.Errorf("%w: %q", pkgerrors.ErrInvalidStatus, tx.Status)
		slog.Error("invalid transaction status", "method", "Create", "status", tx.Status, "error", err)
		return err
	}
	if tx.Amount < 0 {
		err = fmt.Errorf("%w: %v", pkgerrors.ErrInvalidAmount, tx.Amount)
		slog.Error("amount must be non-negative", "method", "Create", "amount", tx.Amount, "error", err)
		return err
	}

	span.SetAttributes(
		attribute.String("transaction_id", tx.ID),
		attribute.String("external_id", tx.ExternalID),
		attribute.String("type", string(tx.Type)),
		attribute.String("status", string(tx.Status)),
		attribute.Float64("amount", tx.Amount),
	)

	metadata, err := marshalMetadata(tx.Metadata)
	if err != nil {
		slog.Error("failed to marshal metadata", "method", "Create", "transaction_id", tx.ID, "error", err)
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `INSERT INTO transactions (id, external_id, type, status, amount, description, customer_name, customer_email, customer_phone, customer_document, metadata, webhook_source, paid_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		tx.ID,
		nullIfEmpty(tx.ExternalID),
		tx.Type,
		tx.Status,
		tx.Amount,
		tx.Description,
		tx.CustomerName,
		tx.CustomerEmail,
		tx.CustomerPhone,
		tx.CustomerDocument,
		metadata,
		tx.WebhookSource,
		tx.PaidAt,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			err = fmt.Errorf("%w: %s", pkgerrors.ErrDuplicateExternalID, tx.ExternalID)
			slog.Warn("duplicate external_id on insert", "method", "Create", "external_id", tx.ExternalID)
			return err
		}
		slog.Error("failed to create transaction", "method", "Create", "transaction_id", tx.ID, "external_id", tx.ExternalID, "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	slog.Info("transaction created", "method", "Create", "transaction_id", tx.ID, "external_id", tx.ExternalID, "type", tx.Type, "status", tx.Status)
	return nil
}

func (r *PostgresTransactionRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "GetTransactionByExternalID")
	span.SetAttributes(attribute.String("external_id", externalID))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("GetTransactionByExternalID", status).Inc()
		observability.RepositoryDuration.WithLabelValues("GetTransactionByExternalID").Observe(time.Since(start).Seconds())
	}()

	query := `SELECT id, external_id, type, status, amount, description, customer_name, customer_email, customer_phone, customer_document, metadata, webhook_source, paid_at, created_at, updated_at FROM transactions WHERE external_id = $1`
	tx, scanErr := scanTransaction(r.db.QueryRowContext(ctx, query, externalID))
	if stderrors.Is(scanErr, sql.ErrNoRows) {
		err = pkgerrors.ErrTransactionNotFound
		return nil, err
	}
	if scanErr != nil {
		err = fmt.Errorf("failed to get transaction by external_id: %w", scanErr)
		slog.Error("failed to get transaction", "method", "GetByExternalID", "external_id", externalID, "error", scanErr)
		return nil, err
	}

	return tx, nil
}

func (r *PostgresTransactionRepository) UpdateByExternalID(ctx context.Context, externalID string, upd models.TransactionUpdate) (*models.Transaction, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "UpdateTransactionByExternalID")
	span.SetAttributes(
		attribute.String("external_id", externalID),
		attribute.String("status", string(upd.Status)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("UpdateTransactionByExternalID", status).Inc()
		observability.RepositoryDuration.WithLabelValues("UpdateTransactionByExternalID").Observe(time.Since(start).Seconds())
	}()

	if !upd.Status.Valid() {
		err = fmt.Errorf("%w: %q", pkgerrors.ErrInvalidStatus, upd.Status)
		slog.Error("invalid transaction status", "method", "UpdateByExternalID", "status", upd.Status, "error", err)
		return nil, err
	}

	var metadata []byte
	if upd.Metadata != nil {
		metadata, err = marshalMetadata(upd.Metadata)
		if err != nil {
			slog.Error("failed to marshal metadata", "method", "UpdateByExternalID", "external_id", externalID, "error", err)
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	// COALESCE keeps the stored paid_at/metadata when the delivery carries
	// none; paid_at is therefore never cleared by a non-pago update.
	query := `UPDATE transactions SET status = $2, paid_at = COALESCE($3, paid_at), metadata = COALESCE($4, metadata), updated_at = now() WHERE external_id = $1 RETURNING id, external_id, type, status, amount, description, customer_name, customer_email, customer_phone, customer_document, metadata, webhook_source, paid_at, created_at, updated_at`
	tx, scanErr := scanTransaction(r.db.QueryRowContext(ctx, query, externalID, upd.Status, upd.PaidAt, metadata))
	if stderrors.Is(scanErr, sql.ErrNoRows) {
		err = pkgerrors.ErrTransactionNotFound
		slog.Error("transaction not found", "method", "UpdateByExternalID", "external_id", externalID)
		return nil, err
	}
	if scanErr != nil {
		err = fmt.Errorf("failed to update transaction: %w", scanErr)
		slog.Error("failed to update transaction", "method", "UpdateByExternalID", "external_id", externalID, "error", scanErr)
		return nil, err
	}

	slog.Info("transaction updated", "method", "UpdateByExternalID", "transaction_id", tx.ID, "external_id", externalID, "status", tx.Status)
	return tx, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx         models.Transaction
		externalID sql.NullString
		metadata   []byte
		paidAt     sql.NullTime
	)
	err := row.Scan(
		&tx.ID,
		&externalID,
		&tx.Type,
		&tx.Status,
		&tx.Amount,
		&tx.Description,
		&tx.CustomerName,
		&tx.CustomerEmail,
		&tx.CustomerPhone,
		&tx.CustomerDocument,
		&metadata,
		&tx.WebhookSource,
		&paidAt,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.ExternalID = externalID.String
	if paidAt.Valid {
		t := paidAt.Time
		tx.PaidAt = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &tx, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
