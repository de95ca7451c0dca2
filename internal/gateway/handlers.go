package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gramseva/marketfeed/internal/alerts"
	"github.com/gramseva/marketfeed/internal/market"
	"github.com/gramseva/marketfeed/internal/model"
	"github.com/gramseva/marketfeed/internal/notify"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// AlertsResponse is the body of GET /api/alerts.
type AlertsResponse struct {
	Alerts []model.MarketAlert `json:"alerts"`
	Unread int                 `json:"unread"`
}

// PriceAlertRequest is the body of POST /api/alerts.
type PriceAlertRequest struct {
	Commodity   string          `json:"commodity"`
	TargetPrice int             `json:"targetPrice"`
	Direction   model.Direction `json:"direction"`
}

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

func (h *handlers) getPrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records := h.deps.Prices.GetCurrentPrices(q.Get("commodity"), q.Get("market"))
	if records == nil {
		records = []model.PriceRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handlers) comparePrices(w http.ResponseWriter, r *http.Request) {
	cmp, err := h.deps.Prices.GetPriceComparison(chi.URLParam(r, "commodity"))
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (h *handlers) getAnalytics(w http.ResponseWriter, r *http.Request) {
	period, err := market.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_period", err.Error())
		return
	}
	a, err := h.deps.Prices.GetMarketAnalytics(chi.URLParam(r, "commodity"), period)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	period, err := market.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_period", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Prices.GetHistoricalData(chi.URLParam(r, "commodity"), period))
}

func (h *handlers) getSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Prices.GetMarketSummary())
}

func (h *handlers) getAlerts(w http.ResponseWriter, r *http.Request) {
	list := h.deps.Alerts.Alerts()
	if list == nil {
		list = []model.MarketAlert{}
	}
	writeJSON(w, http.StatusOK, AlertsResponse{Alerts: list, Unread: h.deps.Alerts.Unread()})
}

func (h *handlers) createAlert(w http.ResponseWriter, r *http.Request) {
	var req PriceAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	req.Commodity = strings.TrimSpace(req.Commodity)
	if req.Commodity == "" {
		writeError(w, http.StatusBadRequest, "missing_parameter", "commodity is required")
		return
	}

	alert, err := h.deps.Alerts.SetPriceAlert(req.Commodity, req.TargetPrice, req.Direction)
	switch {
	case errors.Is(err, alerts.ErrInvalidDirection), errors.Is(err, alerts.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, "invalid_alert", err.Error())
		return
	case err != nil:
		h.logger.Error("failed to set price alert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (h *handlers) markAlertRead(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Alerts.MarkRead(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not_found", "alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getNotificationConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Notifications.GetConfig())
}

func (h *handlers) putNotificationConfig(w http.ResponseWriter, r *http.Request) {
	var cfg notify.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	// The config is applied even when it cannot be persisted.
	if err := h.deps.Notifications.SaveConfig(r.Context(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "persist_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Notifications.GetConfig())
}

func (h *handlers) testNotifications(w http.ResponseWriter, r *http.Request) {
	h.deps.Notifications.TestNotifications()
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) clearToasts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"cleared": h.deps.Notifications.ClearAll()})
}

func (h *handlers) writeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, market.ErrNoData) {
		writeError(w, http.StatusNotFound, "no_data", err.Error())
		return
	}
	h.logger.Error("query failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
