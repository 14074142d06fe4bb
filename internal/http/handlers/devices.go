package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/homesentry/internal/audit"
	"github.com/dropDatabas3/homesentry/internal/auth"
	"github.com/dropDatabas3/homesentry/internal/http/httpx"
	"github.com/dropDatabas3/homesentry/internal/observability/logger"
	"github.com/dropDatabas3/homesentry/internal/store/core"
)

type deviceResponse struct {
	ID           string    `json:"id"`
	CredentialID string    `json:"device_id"`
	Name         string    `json:"name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toDeviceResponse(d *core.Device) deviceResponse {
	return deviceResponse{ID: d.ID, CredentialID: d.CredentialID, Name: d.Name, CreatedAt: d.CreatedAt}
}

// RegisterDevice es el anuncio del device tras el provisioning (gate
// Device-exists: firma válida, claim no requerido). Es idempotente: la
// credential ya existe, acá solo se confirma que el backend la ve.
func (h *Handlers) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	dp, ok := auth.DeviceFrom(r.Context())
	if !ok {
		httpx.WriteAuthError(w, auth.ErrUnauthenticated)
		return
	}
	logger.From(r.Context()).Info("device registrado",
		logger.DeviceID(dp.ID), logger.Bool("claimed", dp.Credential.Claimed))
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"device_id": dp.ID,
		"claimed":   dp.Credential.Claimed,
	})
}

// DeviceInfo devuelve el estado de la credential firmante (Device-exists).
// Un device sin reclamar puede preguntarlo para saber si ya tiene dueño.
func (h *Handlers) DeviceInfo(w http.ResponseWriter, r *http.Request) {
	dp, ok := auth.DeviceFrom(r.Context())
	if !ok {
		httpx.WriteAuthError(w, auth.ErrUnauthenticated)
		return
	}
	resp := map[string]any{
		"device_id": dp.ID,
		"claimed":   dp.Credential.Claimed,
	}
	if dp.Credential.Claimed {
		if d, err := h.Repo.GetDeviceByCredential(r.Context(), dp.ID); err == nil {
			resp["name"] = d.Name
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// AddDevice es el claim: el usuario autenticado reclama una credential sin
// dueño. CAS en el store; el perdedor de la carrera recibe 409.
func (h *Handlers) AddDevice(w http.ResponseWriter, r *http.Request) {
	up, ok := auth.UserFrom(r.Context())
	if !ok {
		httpx.WriteAuthError(w, auth.ErrUnauthenticated)
		return
	}
	var req struct {
		DeviceID string `json:"device_id"`
		Name     string `json:"name"`
	}
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if req.DeviceID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_device_id", "falta device_id", 1201)
		return
	}

	d, err := h.Repo.ClaimDevice(r.Context(), req.DeviceID, up.ID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNotFound):
			h.claimMetric("not_found")
			httpx.WriteError(w, http.StatusNotFound, "device_not_found", "device desconocido", 1204)
		case errors.Is(err, core.ErrConflict):
			h.claimMetric("conflict")
			httpx.WriteError(w, http.StatusConflict, "already_claimed", "el device ya tiene dueño", 1205)
		default:
			logger.From(r.Context()).Error("claim falló",
				logger.DeviceID(req.DeviceID), logger.UserID(up.ID), logger.Err(err))
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		}
		return
	}

	h.claimMetric("claimed")
	h.Gate.InvalidateCredential(req.DeviceID)
	audit.Log(r.Context(), audit.DeviceClaimed,
		logger.DeviceID(req.DeviceID), logger.UserID(up.ID))
	httpx.WriteJSON(w, http.StatusCreated, toDeviceResponse(d))
}

// UserDevices lista los devices del usuario autenticado (Identity-only).
func (h *Handlers) UserDevices(w http.ResponseWriter, r *http.Request) {
	up, ok := auth.UserFrom(r.Context())
	if !ok {
		httpx.WriteAuthError(w, auth.ErrUnauthenticated)
		return
	}
	devices, err := h.Repo.ListUserDevices(r.Context(), up.ID)
	if err != nil {
		logger.From(r.Context()).Error("list de devices falló", logger.UserID(up.ID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}
	out := make([]deviceResponse, 0, len(devices))
	for i := range devices {
		out = append(out, toDeviceResponse(&devices[i]))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"devices": out})
}

// RemoveDevice borra el device y libera su credential (gate Device-action:
// el request viene firmado por el device Y autorizado por su dueño).
func (h *Handlers) RemoveDevice(w http.ResponseWriter, r *http.Request) {
	up, okU := auth.UserFrom(r.Context())
	dp, okD := auth.DeviceFrom(r.Context())
	if !okU || !okD {
		httpx.WriteAuthError(w, auth.ErrUnauthenticated)
		return
	}

	d, err := h.Repo.GetDeviceByCredential(r.Context(), dp.ID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "device_not_found", "device desconocido", 1204)
			return
		}
		logger.From(r.Context()).Error("lookup de device falló", logger.DeviceID(dp.ID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}

	if err := h.Repo.DeleteDevice(r.Context(), d.ID, up.ID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "device_not_found", "device desconocido", 1204)
			return
		}
		logger.From(r.Context()).Error("delete de device falló", logger.DeviceID(dp.ID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}

	h.Gate.InvalidateCredential(dp.ID)
	audit.Log(r.Context(), audit.DeviceRemoved,
		logger.DeviceID(dp.ID), logger.UserID(up.ID))
	w.WriteHeader(http.StatusNoContent)
}
