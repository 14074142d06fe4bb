package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/homesentry/internal/auth"
	"github.com/dropDatabas3/homesentry/internal/http/httpx"
	"github.com/dropDatabas3/homesentry/internal/observability/logger"
	"github.com/dropDatabas3/homesentry/internal/store/core"
	"github.com/dropDatabas3/homesentry/internal/validation"
)

type eventResponse struct {
	ID         string          `json:"id"`
	DeviceID   string          `json:"device_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// AddEvent persiste una detección reportada por un device reclamado (gate
// Device-action: firma del device + ownership del bearer). El owner queda
// congelado en la fila: si el device cambia de dueño, el historial no.
func (h *Handlers) AddEvent(w http.ResponseWriter, r *http.Request) {
	up, okU := auth.UserFrom(r.Context())
	dp, okD := auth.DeviceFrom(r.Context())
	if !okU || !okD {
		httpx.WriteAuthError(w, auth.ErrUnauthenticated)
		return
	}

	var req struct {
		DeviceID   string          `json:"device_id"`
		EventType  string          `json:"event_type"`
		OccurredAt *time.Time      `json:"occurred_at"`
		Details    json.RawMessage `json:"details"`
	}
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if req.EventType == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "falta event_type", 1103)
		return
	}
	if !validation.ValidEventType(req.EventType) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_event_type", "event_type con formato inválido", 1105)
		return
	}

	occurred := time.Now().UTC()
	if req.OccurredAt != nil {
		occurred = req.OccurredAt.UTC()
	}
	e := &core.Event{
		DeviceID:   dp.ID,
		UserID:     up.ID,
		EventType:  req.EventType,
		OccurredAt: occurred,
		Details:    req.Details,
	}
	if err := h.Repo.InsertEvent(r.Context(), e); err != nil {
		logger.From(r.Context()).Error("insert de evento falló",
			logger.DeviceID(dp.ID), logger.EventType(req.EventType), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}

	logger.From(r.Context()).Info("evento registrado",
		logger.DeviceID(dp.ID), logger.EventType(req.EventType))
	httpx.WriteJSON(w, http.StatusCreated, eventResponse{
		ID:         e.ID,
		DeviceID:   e.DeviceID,
		EventType:  e.EventType,
		OccurredAt: e.OccurredAt,
		Details:    e.Details,
	})
}

// DeviceEvents lista los eventos de un device, más nuevos primero (gate
// Identity-only; el ownership se chequea acá contra el device del path).
func (h *Handlers) DeviceEvents(w http.ResponseWriter, r *http.Request) {
	up, ok := auth.UserFrom(r.Context())
	if !ok {
		httpx.WriteAuthError(w, auth.ErrUnauthenticated)
		return
	}
	deviceID := chi.URLParam(r, "device_id")
	if deviceID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_device_id", "falta device id", 1201)
		return
	}

	d, err := h.Repo.GetDeviceByCredential(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "device_not_found", "device desconocido", 1204)
			return
		}
		logger.From(r.Context()).Error("lookup de device falló", logger.DeviceID(deviceID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}
	if d.UserID != up.ID {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "no autorizado sobre este recurso", 1301)
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.Repo.ListDeviceEvents(r.Context(), deviceID, limit)
	if err != nil {
		logger.From(r.Context()).Error("list de eventos falló", logger.DeviceID(deviceID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:         e.ID,
			DeviceID:   e.DeviceID,
			EventType:  e.EventType,
			OccurredAt: e.OccurredAt,
			Details:    e.Details,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"events": out})
}
