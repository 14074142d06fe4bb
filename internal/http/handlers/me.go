package handlers

import (
	"net/http"

	"github.com/dropDatabas3/homesentry/internal/auth"
	"github.com/dropDatabas3/homesentry/internal/http/httpx"
	"github.com/dropDatabas3/homesentry/internal/observability/logger"
)

type profileResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Me devuelve el perfil del usuario autenticado (gate Identity-only).
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	up, ok := auth.UserFrom(r.Context())
	if !ok {
		httpx.WriteAuthError(w, auth.ErrUnauthenticated)
		return
	}
	p, err := h.Identity.Profile(r.Context(), up.ID)
	if err != nil {
		logger.From(r.Context()).Error("lookup de perfil falló", logger.UserID(up.ID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profileResponse{
		UserID:    p.UserID,
		Email:     p.Contact,
		FullName:  p.FullName,
		AvatarURL: p.AvatarURL,
	})
}

// UpdateProfile actualiza nombre y/o avatar. Campos vacíos no tocan nada.
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	up, ok := auth.UserFrom(r.Context())
	if !ok {
		httpx.WriteAuthError(w, auth.ErrUnauthenticated)
		return
	}
	var req struct {
		FullName  string `json:"full_name"`
		AvatarURL string `json:"avatar_url"`
	}
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	p, err := h.Identity.UpdateProfile(r.Context(), up.ID, req.FullName, req.AvatarURL)
	if err != nil {
		logger.From(r.Context()).Error("update de perfil falló", logger.UserID(up.ID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profileResponse{
		UserID:    p.UserID,
		Email:     p.Contact,
		FullName:  p.FullName,
		AvatarURL: p.AvatarURL,
	})
}
