package repository

import (
	"context"

	"github.com/painelvendas/ingest-service/internal/models"
)

type PushEndpointRepository interface {
	Save(ctx context.Context, ep *models.PushEndpoint) error
	List(ctx context.Context) ([]models.PushEndpoint, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}
