package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/painelvendas/ingest-service/internal/infrastructure/auth"
	"github.com/painelvendas/ingest-service/internal/models"
	"github.com/painelvendas/ingest-service/internal/payload"
	"github.com/painelvendas/ingest-service/internal/repository"
	service "github.com/painelvendas/ingest-service/internal/services"
	pkgerrors "github.com/painelvendas/ingest-service/pkg/errors"
)

type Handler struct {
	ingest       service.IngestService
	endpointRepo repository.PushEndpointRepository
}

func NewHandler(ingest service.IngestService, endpointRepo repository.PushEndpointRepository) *Handler {
	return &Handler{ingest: ingest, endpointRepo: endpointRepo}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/webhook", h.ReceiveWebhook).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/subscriptions", h.Subscribe).Methods(http.MethodPost)
	r.HandleFunc("/subscriptions", h.Unsubscribe).Methods(http.MethodDelete)
}

// setCORSHeaders keeps the webhook surface open to any origin; gateways and
// the dashboard both post here.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	var wh payload.Webhook
	if err := json.NewDecoder(r.Body).Decode(&wh); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.ingest.Ingest(r.Context(), wh, r.UserAgent())
	if err != nil {
		if pkgerrors.IsValidation(err) {
			h.writeError(w, http.StatusBadRequest, err)
		} else {
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	status := http.StatusOK
	if res.Action == service.ActionCreated {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, map[string]any{
		"success":        true,
		"action":         res.Action,
		"transaction_id": res.TransactionID,
	})
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	ep := &models.PushEndpoint{
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
		UserID:   userID,
	}
	if err := h.endpointRepo.Save(r.Context(), ep); err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidSubscription) {
			h.writeError(w, http.StatusBadRequest, err)
		} else {
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserID(r.Context()); !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidSubscription)
		return
	}

	if err := h.endpointRepo.DeleteByEndpoint(r.Context(), req.Endpoint); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
