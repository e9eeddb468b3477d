package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/painelvendas/ingest-service/internal/models"
	pkgerrors "github.com/painelvendas/ingest-service/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const transactionTTL = 24 * time.Hour

// TransactionCache is a read-through cache for transactions keyed by
// external_id, consulted before the Postgres lookup on the webhook hot path.
type TransactionCache interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error)
	Set(ctx context.Context, tx *models.Transaction) error
	Close() error
}

type Client struct {
	client *redis.Client
}

func NewClient(addr string) *Client {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("failed to connect to Redis", "addr", addr, "error", err)
		panic(err)
	}

	slog.Info("connected to Redis", "addr", addr)
	return &Client{client: client}
}

func key(externalID string) string {
	return fmt.Sprintf("tx:external:%s", externalID)
}

func (c *Client) GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error) {
	val, err := c.client.Get(ctx, key(externalID)).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil, pkgerrors.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var tx models.Transaction
	if err := json.Unmarshal([]byte(val), &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached transaction: %w", err)
	}
	return &tx, nil
}

func (c *Client) Set(ctx context.Context, tx *models.Transaction) error {
	if tx == nil || tx.ExternalID == "" {
		return nil
	}
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}
	return c.client.Set(ctx, key(tx.ExternalID), data, transactionTTL).Err()
}

func (c *Client) Close() error {
	return c.client.Close()
}
