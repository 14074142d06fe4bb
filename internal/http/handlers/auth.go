package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/homesentry/internal/audit"
	"github.com/dropDatabas3/homesentry/internal/http/httpx"
	"github.com/dropDatabas3/homesentry/internal/identity"
	"github.com/dropDatabas3/homesentry/internal/observability/logger"
	"github.com/dropDatabas3/homesentry/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

// authResponse es la respuesta de login/refresh. El refresh token NO viaja
// en el body: va en la cookie HttpOnly.
type authResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	UserID      string `json:"user_id"`
	FullName    string `json:"full_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Login valida credenciales, emite el par de tokens y setea la cookie.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "email y password son obligatorios", 1103)
		return
	}

	userID, profile, err := h.Identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrNotVerified):
			httpx.WriteError(w, http.StatusUnauthorized, "email_not_verified", "confirmá tu email antes de entrar", 1106)
		case errors.Is(err, identity.ErrBadCredentials):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "email o password incorrectos", 1104)
		default:
			logger.From(r.Context()).Error("login falló", logger.Err(err))
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		}
		return
	}

	pair, err := h.Sessions.Login(r.Context(), userID)
	if err != nil {
		logger.From(r.Context()).Error("emisión de tokens falló", logger.UserID(userID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}

	http.SetCookie(w, buildSessionCookie(h.Cookies, pair.RefreshToken, h.Sessions.RefreshTTL()))
	resp := authResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(pair.AccessExpires).Seconds()),
		UserID:      userID,
	}
	if profile != nil {
		resp.FullName = profile.FullName
		resp.AvatarURL = profile.AvatarURL
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Signup registra la identidad y dispara el mail de confirmación.
// Siempre 202: la cuenta no sirve hasta confirmar.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "email y password son obligatorios", 1103)
		return
	}

	err := h.Identity.Signup(r.Context(), req.Email, req.Password, req.FullName, req.AvatarURL)
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, "email_taken", "ya existe una cuenta con ese email", 1107)
		return
	case errors.Is(err, identity.ErrWeakPassword):
		httpx.WriteError(w, http.StatusBadRequest, "weak_password", "el password es demasiado corto", 1108)
		return
	default:
		logger.From(r.Context()).Error("signup falló", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "revisá tu correo para confirmar la cuenta",
	})
}

// ResendConfirmation re-envía el mail de verificación. Siempre 202: no
// decimos si la cuenta existe ni en qué estado está.
func (h *Handlers) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "email es obligatorio", 1103)
		return
	}
	if err := h.Identity.ResendConfirmation(r.Context(), req.Email); err != nil {
		logger.From(r.Context()).Error("resend de confirmación falló", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "si la cuenta existe y está pendiente, te llegará un correo",
	})
}

// ConfirmEmail consume el token de verificación (GET con ?token=).
func (h *Handlers) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	// El link del mail llega por GET con ?token=; los clients programáticos
	// pueden mandar POST con body JSON.
	token := r.URL.Query().Get("token")
	if token == "" && r.Method == http.MethodPost {
		var body struct {
			Token string `json:"token"`
		}
		if dec := jsonDecoderLimited(r, 4096); dec != nil {
			_ = dec.Decode(&body)
		}
		token = body.Token
	}
	if err := h.Identity.ConfirmEmail(r.Context(), token); err != nil {
		if errors.Is(err, identity.ErrTokenInvalid) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_token", "token inválido, usado o vencido", 1109)
			return
		}
		logger.From(r.Context()).Error("confirm_email falló", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "email confirmado"})
}

// Refresh rota el refresh token de la cookie y devuelve un access nuevo.
// Cualquier token inválido (inexistente, rotado, revocado, vencido) es el
// mismo 401: no damos oráculo de en qué estado quedó.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	presented := h.refreshFromRequest(r)
	if presented == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "missing_refresh", "falta refresh token", 1110)
		return
	}

	pair, err := h.Sessions.Refresh(r.Context(), presented)
	if err != nil {
		if errors.Is(err, session.ErrInvalid) {
			h.refreshMetric("invalid")
			http.SetCookie(w, buildDeletionCookie(h.Cookies))
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_refresh", "refresh token inválido", 1111)
			return
		}
		logger.From(r.Context()).Error("refresh falló", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}

	h.refreshMetric("rotated")
	http.SetCookie(w, buildSessionCookie(h.Cookies, pair.RefreshToken, h.Sessions.RefreshTTL()))

	// Misma forma de respuesta que login, para que el cliente no tenga que
	// distinguir de dónde salió el access token.
	resp := authResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(pair.AccessExpires).Seconds()),
		UserID:      pair.UserID,
	}
	if p, perr := h.Identity.Profile(r.Context(), pair.UserID); perr == nil {
		resp.FullName = p.FullName
		resp.AvatarURL = p.AvatarURL
	} else {
		logger.From(r.Context()).Warn("perfil no disponible en refresh",
			logger.UserID(pair.UserID), logger.Err(perr))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Logout revoca el refresh token presentado y borra la cookie. Idempotente.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if presented := h.refreshFromRequest(r); presented != "" {
		if err := h.Sessions.Revoke(r.Context(), presented); err != nil {
			logger.From(r.Context()).Warn("revoke en logout falló", logger.Err(err))
		} else {
			audit.Log(r.Context(), audit.SessionRevoked)
		}
	}
	http.SetCookie(w, buildDeletionCookie(h.Cookies))
	w.WriteHeader(http.StatusNoContent)
}

// refreshFromRequest saca el refresh token de la cookie; como fallback para
// clients no-browser, acepta body JSON {"refresh_token": ...}.
func (h *Handlers) refreshFromRequest(r *http.Request) string {
	if c, err := r.Cookie(h.Cookies.name()); err == nil && c.Value != "" {
		return c.Value
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	dec := jsonDecoderLimited(r, 4096)
	if dec != nil {
		_ = dec.Decode(&body)
	}
	return body.RefreshToken
}
