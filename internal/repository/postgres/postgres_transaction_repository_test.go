package repository_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/painelvendas/ingest-service/internal/models"
	repository "github.com/painelvendas/ingest-service/internal/repository/postgres"
	pkgerrors "github.com/painelvendas/ingest-service/pkg/errors"
	"github.com/stretchr/testify/assert"
)

var transactionColumns = []string{
	"id", "external_id", "type", "status", "amount",
	"description", "customer_name", "customer_email", "customer_phone", "customer_document",
	"metadata", "webhook_source", "paid_at", "created_at", "updated_at",
}

func sampleTransaction() *models.Transaction {
	return &models.Transaction{
		ID:            "5a0f5a4f-9c3a-4c46-9f8a-1c6a9a1f1e10",
		ExternalID:    "abc123",
		Type:          models.TypePix,
		Status:        models.StatusGerado,
		Amount:        150,
		CustomerName:  "João Silva",
		WebhookSource: "PaymentGateway/1.0",
	}
}

func TestPostgresTransactionRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()

	t.Run("NilTransaction", func(t *testing.T) {
		err := repo.Create(ctx, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrNilTransaction)
	})

	t.Run("InvalidType", func(t *testing.T) {
		tx := sampleTransaction()
		tx.Type = "dinheiro"
		err := repo.Create(ctx, tx)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransactionType)
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		tx := sampleTransaction()
		tx.Status = "quitado"
		err := repo.Create(ctx, tx)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidStatus)
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		tx := sampleTransaction()
		tx.Amount = -1
		err := repo.Create(ctx, tx)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)
	})

	t.Run("Success", func(t *testing.T) {
		tx := sampleTransaction()
		createdAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO transactions`)).
			WithArgs(tx.ID, tx.ExternalID, tx.Type, tx.Status, tx.Amount,
				tx.Description, tx.CustomerName, tx.CustomerEmail, tx.CustomerPhone, tx.CustomerDocument,
				sqlmock.AnyArg(), tx.WebhookSource, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(createdAt, createdAt))

		err := repo.Create(ctx, tx)
		assert.NoError(t, err)
		assert.WithinDuration(t, createdAt, tx.CreatedAt, time.Second)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateExternalID", func(t *testing.T) {
		tx := sampleTransaction()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO transactions`)).
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(ctx, tx)
		assert.ErrorIs(t, err, pkgerrors.ErrDuplicateExternalID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_GetByExternalID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, external_id, type, status, amount`)).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		tx, err := repo.GetByExternalID(ctx, "missing")
		assert.Nil(t, tx)
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success", func(t *testing.T) {
		now := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, external_id, type, status, amount`)).
			WithArgs("abc123").
			WillReturnRows(sqlmock.NewRows(transactionColumns).AddRow(
				"5a0f5a4f-9c3a-4c46-9f8a-1c6a9a1f1e10", "abc123", "pix", "gerado", 150.0,
				"", "João Silva", "", "", "",
				[]byte(`{"boleto_url":"https://banco.example/42"}`), "unknown", nil, now, now,
			))

		tx, err := repo.GetByExternalID(ctx, "abc123")
		assert.NoError(t, err)
		assert.Equal(t, "abc123", tx.ExternalID)
		assert.Equal(t, models.TypePix, tx.Type)
		assert.Equal(t, map[string]any{"boleto_url": "https://banco.example/42"}, tx.Metadata)
		assert.Nil(t, tx.PaidAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_UpdateByExternalID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()

	t.Run("InvalidStatus", func(t *testing.T) {
		_, err := repo.UpdateByExternalID(ctx, "abc123", models.TransactionUpdate{Status: "quitado"})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidStatus)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE transactions SET status = $2`)).
			WithArgs("missing", models.StatusPago, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnError(sql.ErrNoRows)

		tx, err := repo.UpdateByExternalID(ctx, "missing", models.TransactionUpdate{Status: models.StatusPago})
		assert.Nil(t, tx)
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success", func(t *testing.T) {
		now := time.Now().UTC()
		paidAt := now.Add(-time.Minute)
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE transactions SET status = $2`)).
			WithArgs("abc123", models.StatusPago, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(transactionColumns).AddRow(
				"5a0f5a4f-9c3a-4c46-9f8a-1c6a9a1f1e10", "abc123", "pix", "pago", 150.0,
				"", "João Silva", "", "", "",
				[]byte(`{}`), "unknown", paidAt, now, now,
			))

		tx, err := repo.UpdateByExternalID(ctx, "abc123", models.TransactionUpdate{
			Status: models.StatusPago,
			PaidAt: &paidAt,
		})
		assert.NoError(t, err)
		assert.Equal(t, models.StatusPago, tx.Status)
		assert.NotNil(t, tx.PaidAt)
		assert.WithinDuration(t, paidAt, *tx.PaidAt, time.Second)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
