package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/stock-sync/internal/core/analysis"
	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/core/service"
	"github.com/rl1809/stock-sync/internal/metrics"
)

const maxBodyBytes = 1 << 20

// Inventory is the part of the owner session the HTTP API serves.
type Inventory interface {
	Items() []domain.Item
	CreateItem(ctx context.Context, fields domain.ItemFields) (domain.Item, error)
	UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (domain.Item, error)
	DeleteItem(ctx context.Context, id string) error
	BulkDelete(ctx context.Context, ids []string) error
	BulkUpdate(ctx context.Context, patches map[string]domain.ItemPatch) (service.BulkResult, error)

	GetLowStockItems() []domain.Item
	GetOutOfStockItems() []domain.Item
	GetExpiringItems(days int) []domain.Item
	GetExpiredItems() []domain.Item
	GetInventoryStats() domain.InventoryStats
	EvaluateAlerts(ctx context.Context) []domain.Alert

	ConnectionStatus() domain.ConnectionStatus
	Reconnect() error
}

// NotificationReader lists recently delivered alerts.
type NotificationReader interface {
	Recent(ctx context.Context, ownerID string, n int) ([]domain.Alert, error)
}

type HTTPHandler struct {
	inventory     Inventory
	notifications NotificationReader
	ownerID       string
	logger        zerolog.Logger
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type BulkUpdateRequest struct {
	Items map[string]domain.ItemPatch `json:"items"`
}

type BulkUpdateResponse struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

type ConnectionResponse struct {
	State          domain.ConnectionState `json:"state"`
	Connected      bool                   `json:"connected"`
	RetryCount     int                    `json:"retry_count"`
	MaxRetries     int                    `json:"max_retries"`
	NextRetryDelay string                 `json:"next_retry_delay,omitempty"`
	Exhausted      bool                   `json:"exhausted"`
	LastError      string                 `json:"last_error,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func NewHTTPHandler(inventory Inventory, notifications NotificationReader, ownerID string, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		inventory:     inventory,
		notifications: notifications,
		ownerID:       ownerID,
		logger:        logger,
	}
}

// Routes registers the REST API, health probes and /metrics.
func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/items", h.ListItems)
	mux.HandleFunc("POST /api/items", h.CreateItem)
	mux.HandleFunc("PATCH /api/items/{id}", h.UpdateItem)
	mux.HandleFunc("DELETE /api/items/{id}", h.DeleteItem)
	mux.HandleFunc("POST /api/items/bulk-delete", h.BulkDelete)
	mux.HandleFunc("POST /api/items/bulk-update", h.BulkUpdate)

	mux.HandleFunc("GET /api/analysis/low-stock", h.LowStock)
	mux.HandleFunc("GET /api/analysis/out-of-stock", h.OutOfStock)
	mux.HandleFunc("GET /api/analysis/expiring", h.Expiring)
	mux.HandleFunc("GET /api/analysis/expired", h.Expired)
	mux.HandleFunc("GET /api/analysis/stats", h.Stats)

	mux.HandleFunc("POST /api/alerts/evaluate", h.EvaluateAlerts)
	if h.notifications != nil {
		mux.HandleFunc("GET /api/notifications", h.Notifications)
	}

	mux.HandleFunc("GET /api/connection", h.Connection)
	mux.HandleFunc("POST /api/connection/reconnect", h.Reconnect)

	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /ready", h.ReadyCheck)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.inventory.Items())
}

func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var fields domain.ItemFields
	if !h.decode(w, r, &fields) {
		return
	}

	item, err := h.inventory.CreateItem(r.Context(), fields)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *HTTPHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var patch domain.ItemPatch
	if !h.decode(w, r, &patch) {
		return
	}

	item, err := h.inventory.UpdateItem(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *HTTPHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.inventory.BulkDelete(r.Context(), req.IDs); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BulkUpdate answers 200 when every update landed and 207 with the per-item
// failures otherwise.
func (h *HTTPHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req BulkUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.inventory.BulkUpdate(r.Context(), req.Items)
	if err != nil && len(result.Succeeded) == 0 && len(result.Failed) == 0 {
		h.writeError(w, err)
		return
	}

	resp := BulkUpdateResponse{Succeeded: result.Succeeded}
	if resp.Succeeded == nil {
		resp.Succeeded = []string{}
	}
	status := http.StatusOK
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
		resp.Failed = make(map[string]string, len(result.Failed))
		for id, ferr := range result.Failed {
			resp.Failed[id] = ferr.Error()
		}
	}
	writeJSON(w, status, resp)
}

func (h *HTTPHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.inventory.GetLowStockItems())
}

func (h *HTTPHandler) OutOfStock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.inventory.GetOutOfStockItems())
}

// Expiring takes the window in ?days=, defaulting to the stats window.
func (h *HTTPHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	days := analysis.StatsExpiryWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "days must be a non-negative integer", Field: "days"})
			return
		}
		days = n
	}
	writeJSON(w, http.StatusOK, h.inventory.GetExpiringItems(days))
}

func (h *HTTPHandler) Expired(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.inventory.GetExpiredItems())
}

func (h *HTTPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.inventory.GetInventoryStats())
}

func (h *HTTPHandler) EvaluateAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.inventory.EvaluateAlerts(r.Context()))
}

func (h *HTTPHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer", Field: "limit"})
			return
		}
		limit = n
	}

	alerts, err := h.notifications.Recent(r.Context(), h.ownerID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *HTTPHandler) Connection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, connectionResponse(h.inventory.ConnectionStatus()))
}

// Reconnect is the manual refresh offered once automatic retries give up.
func (h *HTTPHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.Reconnect(); err != nil {
		h.logger.Warn().Err(err).Msg("manual reconnect failed")
	}
	writeJSON(w, http.StatusOK, connectionResponse(h.inventory.ConnectionStatus()))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyCheck reports 503 until the change feed is connected.
func (h *HTTPHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	status := h.inventory.ConnectionStatus()
	if status.State != domain.ConnectionConnected {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":     "not ready",
			"connection": string(status.State),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "connection": string(status.State)})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

// writeError maps domain errors onto status codes: validation 400, unknown
// item 404, anything else is a failed remote call and answers 502.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Field: verr.Field})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "item not found"})
	default:
		h.logger.Error().Err(err).Msg("remote store request failed")
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "remote store unavailable"})
	}
}

func connectionResponse(status domain.ConnectionStatus) ConnectionResponse {
	resp := ConnectionResponse{
		State:      status.State,
		Connected:  status.State == domain.ConnectionConnected,
		RetryCount: status.RetryCount,
		MaxRetries: status.MaxRetries,
		Exhausted:  status.Exhausted,
		LastError:  status.LastError,
		UpdatedAt:  status.UpdatedAt,
	}
	if status.NextRetryDelay > 0 {
		resp.NextRetryDelay = status.NextRetryDelay.String()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
