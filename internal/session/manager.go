// Package session administra el ciclo de vida de los tokens de usuario:
// access tokens JWT de vida corta y refresh tokens opacos de vida larga con
// rotación por uso.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/homesentry/internal/jwt"
	"github.com/dropDatabas3/homesentry/internal/observability/logger"
	tokens "github.com/dropDatabas3/homesentry/internal/security/token"
	"github.com/dropDatabas3/homesentry/internal/store/core"
)

// ErrInvalid se devuelve para CUALQUIER refresh token no utilizable:
// inexistente, revocado o expirado. El caller no debe poder distinguirlos
// (oracle); los logs internos sí distinguen.
var ErrInvalid = errors.New("session: invalid refresh token")

const refreshTokenBytes = 32

// TokenPair es el resultado de login/refresh.
type TokenPair struct {
	UserID         string
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string // plaintext; solo viaja al cliente, nunca se persiste
	RefreshExpires time.Time
}

// Manager emite, rota y revoca tokens. Repo e issuer inyectados; sin estado
// mutable propio.
type Manager struct {
	repo       core.Repository
	issuer     *jwt.Issuer
	refreshTTL time.Duration
}

func NewManager(repo core.Repository, issuer *jwt.Issuer, refreshTTL time.Duration) *Manager {
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &Manager{repo: repo, issuer: issuer, refreshTTL: refreshTTL}
}

// RefreshTTL expone el TTL configurado (para el Max-Age de la cookie).
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// Login emite un access token nuevo y un refresh token nuevo. Nunca reusa
// un refresh existente.
func (m *Manager) Login(ctx context.Context, userID string) (*TokenPair, error) {
	access, accessExp, err := m.issuer.IssueAccess(userID)
	if err != nil {
		return nil, err
	}

	raw, err := tokens.GenerateOpaqueToken(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	refreshExp := time.Now().UTC().Add(m.refreshTTL)
	if _, err := m.repo.CreateRefreshToken(ctx, userID, tokens.SHA256Base64URL(raw), refreshExp, nil); err != nil {
		return nil, err
	}

	return &TokenPair{
		UserID:         userID,
		AccessToken:    access,
		AccessExpires:  accessExp,
		RefreshToken:   raw,
		RefreshExpires: refreshExp,
	}, nil
}

// Refresh valida el token presentado y lo rota: inserta el nuevo y revoca el
// presentado en el mismo paso atómico del store. Re-presentar un token ya
// rotado falla con ErrInvalid y se loguea como señal de posible compromiso.
func (m *Manager) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	if presented == "" {
		return nil, ErrInvalid
	}
	log := logger.From(ctx).With(logger.Component("session"))

	rt, err := m.repo.GetRefreshTokenByHash(ctx, tokens.SHA256Base64URL(presented))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			log.Warn("refresh: hash desconocido")
			return nil, ErrInvalid
		}
		return nil, err
	}

	now := time.Now()
	if rt.RevokedAt != nil {
		// Hash encontrado pero revocado: alguien presentó un token ya rotado.
		log.Warn("refresh: token ya rotado re-presentado, posible compromiso",
			logger.UserID(rt.UserID))
		return nil, ErrInvalid
	}
	if !now.Before(rt.ExpiresAt) {
		log.Info("refresh: token expirado", logger.UserID(rt.UserID))
		return nil, ErrInvalid
	}

	raw, err := tokens.GenerateOpaqueToken(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	refreshExp := now.UTC().Add(m.refreshTTL)
	if _, err := m.repo.RotateRefreshToken(ctx, rt.ID, rt.UserID, tokens.SHA256Base64URL(raw), refreshExp); err != nil {
		if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrConflict) || errors.Is(err, core.ErrInvalid) {
			// otro request rotó primero
			log.Warn("refresh: carrera de rotación perdida", logger.UserID(rt.UserID))
			return nil, ErrInvalid
		}
		return nil, err
	}

	access, accessExp, err := m.issuer.IssueAccess(rt.UserID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		UserID:         rt.UserID,
		AccessToken:    access,
		AccessExpires:  accessExp,
		RefreshToken:   raw,
		RefreshExpires: refreshExp,
	}, nil
}

// Revoke marca el refresh presentado como revocado. Idempotente: revocar un
// token inexistente o ya revocado no es error.
func (m *Manager) Revoke(ctx context.Context, presented string) error {
	if presented == "" {
		return nil
	}
	rt, err := m.repo.GetRefreshTokenByHash(ctx, tokens.SHA256Base64URL(presented))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := m.repo.RevokeRefreshToken(ctx, rt.ID); err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}
	return nil
}
