package handlers

import (
	"net/http"

	"github.com/dropDatabas3/homesentry/internal/http/httpx"
	"github.com/dropDatabas3/homesentry/internal/security/secretbox"
)

// Readyz verifica dependencias reales: storage alcanzable y master key
// cargada. /healthz (liveness) vive aparte y siempre contesta ok.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if !secretbox.Ready() {
		httpx.WriteError(w, http.StatusServiceUnavailable, "not_ready", "master key no inicializada", 1503)
		return
	}
	if err := h.Repo.Ping(r.Context()); err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, "not_ready", "storage no disponible", 1504)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
