package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/painelvendas/ingest-service/internal/api"
	"github.com/painelvendas/ingest-service/internal/handler"
	"github.com/painelvendas/ingest-service/internal/models"
	service "github.com/painelvendas/ingest-service/internal/services"
	pkgerrors "github.com/painelvendas/ingest-service/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "secret"

type memTransactionRepo struct {
	mu   sync.Mutex
	rows []*models.Transaction
}

func (r *memTransactionRepo) Create(ctx context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tx.ExternalID != "" {
		for _, row := range r.rows {
			if row.ExternalID == tx.ExternalID {
				return pkgerrors.ErrDuplicateExternalID
			}
		}
	}
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	clone := *tx
	r.rows = append(r.rows, &clone)
	return nil
}

func (r *memTransactionRepo) GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ExternalID == externalID {
			clone := *row
			return &clone, nil
		}
	}
	return nil, pkgerrors.ErrTransactionNotFound
}

func (r *memTransactionRepo) UpdateByExternalID(ctx context.Context, externalID string, upd models.TransactionUpdate) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ExternalID == externalID {
			row.Status = upd.Status
			if upd.PaidAt != nil {
				row.PaidAt = upd.PaidAt
			}
			if upd.Metadata != nil {
				row.Metadata = upd.Metadata
			}
			row.UpdatedAt = time.Now().UTC()
			clone := *row
			return &clone, nil
		}
	}
	return nil, pkgerrors.ErrTransactionNotFound
}

type memEndpointRepo struct {
	mu        sync.Mutex
	endpoints map[string]models.PushEndpoint
}

func newMemEndpointRepo() *memEndpointRepo {
	return &memEndpointRepo{endpoints: make(map[string]models.PushEndpoint)}
}

func (r *memEndpointRepo) Save(ctx context.Context, ep *models.PushEndpoint) error {
	if ep == nil || ep.Endpoint == "" || ep.P256dh == "" || ep.Auth == "" {
		return pkgerrors.ErrInvalidSubscription
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ep.CreatedAt = time.Now().UTC()
	r.endpoints[ep.Endpoint] = *ep
	return nil
}

func (r *memEndpointRepo) List(ctx context.Context) ([]models.PushEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PushEndpoint
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}
	return out, nil
}

func (r *memEndpointRepo) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, endpoint)
	return nil
}

func setupRouter(t *testing.T) (*mux.Router, *memTransactionRepo, *memEndpointRepo) {
	t.Helper()
	txRepo := &memTransactionRepo{}
	epRepo := newMemEndpointRepo()
	notifier := service.NewNotifyService(epRepo, nil)
	ingest := service.NewIngestService(txRepo, nil, nil, notifier)
	h := handler.NewHandler(ingest, epRepo)
	return api.SetupRouter(h, jwtSecret, promhttp.Handler()), txRepo, epRepo
}

func postJSON(router http.Handler, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func bearerToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestWebhook_CreateThenPay(t *testing.T) {
	router, txRepo, _ := setupRouter(t)

	rec := postJSON(router, "/webhook", `{"type":"pix","amount":"150,00","external_id":"abc123","event":"payment.created"}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Success       bool   `json:"success"`
		Action        string `json:"action"`
		TransactionID string `json:"transaction_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Success)
	assert.Equal(t, "created", created.Action)
	assert.NotEmpty(t, created.TransactionID)

	require.Len(t, txRepo.rows, 1)
	assert.Equal(t, models.StatusGerado, txRepo.rows[0].Status)
	assert.Equal(t, 150.0, txRepo.rows[0].Amount)

	rec = postJSON(router, "/webhook", `{"type":"pix","amount":"150,00","external_id":"abc123","event":"payment.paid"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var updated struct {
		Success       bool   `json:"success"`
		Action        string `json:"action"`
		TransactionID string `json:"transaction_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "updated", updated.Action)
	assert.Equal(t, created.TransactionID, updated.TransactionID)

	require.Len(t, txRepo.rows, 1)
	assert.Equal(t, models.StatusPago, txRepo.rows[0].Status)
	require.NotNil(t, txRepo.rows[0].PaidAt)
	assert.WithinDuration(t, time.Now().UTC(), *txRepo.rows[0].PaidAt, 2*time.Second)
}

func TestWebhook_ValidationErrors(t *testing.T) {
	router, txRepo, _ := setupRouter(t)

	t.Run("MissingType", func(t *testing.T) {
		rec := postJSON(router, "/webhook", `{"amount":"150,00"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "error")
	})

	t.Run("UnparseableAmount", func(t *testing.T) {
		rec := postJSON(router, "/webhook", `{"type":"pix","amount":"abc"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		rec := postJSON(router, "/webhook", `{"type":`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	assert.Empty(t, txRepo.rows)
}

func TestWebhook_CORSPreflight(t *testing.T) {
	router, _, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/webhook", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Body.String())
}

func TestSubscriptions(t *testing.T) {
	router, _, epRepo := setupRouter(t)
	subscription := `{"endpoint":"https://push.example/ep1","keys":{"p256dh":"key","auth":"auth"}}`

	t.Run("RequiresAuth", func(t *testing.T) {
		rec := postJSON(router, "/push/subscriptions", subscription, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Subscribe", func(t *testing.T) {
		rec := postJSON(router, "/push/subscriptions", subscription, map[string]string{
			"Authorization": bearerToken(t, "user-1"),
		})
		assert.Equal(t, http.StatusCreated, rec.Code)

		ep, ok := epRepo.endpoints["https://push.example/ep1"]
		require.True(t, ok)
		assert.Equal(t, "user-1", ep.UserID)
	})

	t.Run("SubscribeInvalidBody", func(t *testing.T) {
		rec := postJSON(router, "/push/subscriptions", `{"endpoint":""}`, map[string]string{
			"Authorization": bearerToken(t, "user-1"),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/push/subscriptions", bytes.NewBufferString(`{"endpoint":"https://push.example/ep1"}`))
		req.Header.Set("Authorization", bearerToken(t, "user-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, epRepo.endpoints)
	})
}

func TestHealthz(t *testing.T) {
	router, _, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
