// Package handlers implementa los endpoints HTTP del servicio.
package handlers

import (
	"github.com/dropDatabas3/homesentry/internal/auth"
	"github.com/dropDatabas3/homesentry/internal/identity"
	"github.com/dropDatabas3/homesentry/internal/session"
	"github.com/dropDatabas3/homesentry/internal/store/core"
)

// CookieConfig controla la cookie del refresh token.
type CookieConfig struct {
	Name     string // default "refresh_token"
	Domain   string
	SameSite string // "lax" | "strict" | "none"
	Secure   bool
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return "refresh_token"
	}
	return c.Name
}

// Handlers agrupa las dependencias compartidas de todos los endpoints.
type Handlers struct {
	Repo     core.Repository
	Identity *identity.Service
	Sessions *session.Manager
	Gate     *auth.Gate
	Cookies  CookieConfig

	// RecordAuthReject / métricas se inyectan para no acoplar handlers al
	// package de métricas.
	OnClaim   func(result string)
	OnRefresh func(result string)
}

func (h *Handlers) claimMetric(result string) {
	if h.OnClaim != nil {
		h.OnClaim(result)
	}
}

func (h *Handlers) refreshMetric(result string) {
	if h.OnRefresh != nil {
		h.OnRefresh(result)
	}
}
