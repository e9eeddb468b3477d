package repository

import (
	"context"

	"github.com/painelvendas/ingest-service/internal/models"
)

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error)
	UpdateByExternalID(ctx context.Context, externalID string, upd models.TransactionUpdate) (*models.Transaction, error)
}
