package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/homesentry/internal/observability/logger"
)

// parseSameSite mapea el string de config a http.SameSite. Default Lax.
func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		logger.L().Warn("samesite desconocido en config, usando Lax", logger.String("samesite", s))
		return http.SameSiteLaxMode
	}
}

// buildSessionCookie arma la cookie del refresh token con flags seguros.
func buildSessionCookie(cfg CookieConfig, value string, ttl time.Duration) *http.Cookie {
	ss := parseSameSite(cfg.SameSite)
	if ss == http.SameSiteNoneMode && !cfg.Secure {
		logger.L().Warn("cookie SameSite=None sin Secure; algunos navegadores la rechazan")
	}
	now := time.Now().UTC()
	c := &http.Cookie{
		Name:     cfg.name(),
		Value:    value,
		Path:     "/",
		Expires:  now.Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: ss,
	}
	if cfg.Domain != "" {
		c.Domain = cfg.Domain
	}
	return c
}

// buildDeletionCookie arma la cookie de borrado (logout).
func buildDeletionCookie(cfg CookieConfig) *http.Cookie {
	c := &http.Cookie{
		Name:     cfg.name(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: parseSameSite(cfg.SameSite),
	}
	if cfg.Domain != "" {
		c.Domain = cfg.Domain
	}
	return c
}
