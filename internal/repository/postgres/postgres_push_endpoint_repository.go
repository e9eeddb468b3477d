package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/painelvendas/ingest-service/internal/infrastructure/observability"
	"github.com/painelvendas/ingest-service/internal/models"
	pkgerrors "github.com/painelvendas/ingest-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type PostgresPushEndpointRepository struct {
	db *sql.DB
}

func NewPostgresPushEndpointRepository(db *sql.DB) *PostgresPushEndpointRepository {
	return &PostgresPushEndpointRepository{db: db}
}

func (r *PostgresPushEndpointRepository) Save(ctx context.Context, ep *models.PushEndpoint) error {
	var err error
	tracer := otel.Tracer("push-endpoint-repository")
	ctx, span := tracer.Start(ctx, "SavePushEndpoint")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("SavePushEndpoint", status).Inc()
		observability.RepositoryDuration.WithLabelValues("SavePushEndpoint").Observe(time.Since(start).Seconds())
	}()

	if ep == nil || ep.Endpoint == "" || ep.P256dh == "" || ep.Auth == "" {
		err = pkgerrors.ErrInvalidSubscription
		slog.Error("invalid push subscription", "method", "Save", "error", err)
		return err
	}

	span.SetAttributes(attribute.String("user_id", ep.UserID))

	// Re-subscribing from the same browser rotates the keys in place.
	query := `INSERT INTO push_endpoints (endpoint, p256dh, auth, user_id) VALUES ($1, $2, $3, $4) ON CONFLICT (endpoint) DO UPDATE SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth, user_id = EXCLUDED.user_id RETURNING created_at`
	err = r.db.QueryRowContext(ctx, query, ep.Endpoint, ep.P256dh, ep.Auth, ep.UserID).Scan(&ep.CreatedAt)
	if err != nil {
		slog.Error("failed to save push endpoint", "method", "Save", "user_id", ep.UserID, "error", err)
		return fmt.Errorf("failed to save push endpoint: %w", err)
	}

	slog.Info("push endpoint saved", "method", "Save", "user_id", ep.UserID)
	return nil
}

func (r *PostgresPushEndpointRepository) List(ctx context.Context) ([]models.PushEndpoint, error) {
	var err error
	tracer := otel.Tracer("push-endpoint-repository")
	ctx, span := tracer.Start(ctx, "ListPushEndpoints")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("ListPushEndpoints", status).Inc()
		observability.RepositoryDuration.WithLabelValues("ListPushEndpoints").Observe(time.Since(start).Seconds())
	}()

	query := `SELECT endpoint, p256dh, auth, user_id, created_at FROM push_endpoints`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Error("failed to list push endpoints", "method", "List", "error", err)
		return nil, fmt.Errorf("failed to list push endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []models.PushEndpoint
	for rows.Next() {
		var ep models.PushEndpoint
		if err = rows.Scan(&ep.Endpoint, &ep.P256dh, &ep.Auth, &ep.UserID, &ep.CreatedAt); err != nil {
			slog.Error("failed to scan push endpoint", "method", "List", "error", err)
			return nil, fmt.Errorf("failed to scan push endpoint: %w", err)
		}
		endpoints = append(endpoints, ep)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate push endpoints: %w", err)
	}

	return endpoints, nil
}

func (r *PostgresPushEndpointRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	var err error
	tracer := otel.Tracer("push-endpoint-repository")
	ctx, span := tracer.Start(ctx, "DeletePushEndpoint")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("DeletePushEndpoint", status).Inc()
		observability.RepositoryDuration.WithLabelValues("DeletePushEndpoint").Observe(time.Since(start).Seconds())
	}()

	query := `DELETE FROM push_endpoints WHERE endpoint = $1`
	if _, err = r.db.ExecContext(ctx, query, endpoint); err != nil {
		slog.Error("failed to delete push endpoint", "method", "DeleteByEndpoint", "error", err)
		return fmt.Errorf("failed to delete push endpoint: %w", err)
	}

	slog.Info("push endpoint deleted", "method", "DeleteByEndpoint")
	return nil
}
