// Package auth implementa el gate de autenticación: los dos tracks
// independientes (bearer de usuario, firma HMAC de device) y las políticas
// que los combinan. El gate construye el Principal tipado; nada más lo hace.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/homesentry/internal/cache"
	"github.com/dropDatabas3/homesentry/internal/jwt"
	"github.com/dropDatabas3/homesentry/internal/observability/logger"
	"github.com/dropDatabas3/homesentry/internal/security/signature"
	"github.com/dropDatabas3/homesentry/internal/store/core"
)

// LegacyVerifier valida un bearer contra el identity provider externo.
// Es un modo de compatibilidad explícito y deprecado: solo corre si la
// verificación local falla Y el modo está habilitado por config. Nunca
// aumenta el nivel de confianza en silencio.
type LegacyVerifier interface {
	VerifyBearer(ctx context.Context, token string) (userID string, err error)
}

// Gate resuelve identidades. Store e issuer se inyectan al construir; no hay
// estado mutable compartido más allá de ellos.
type Gate struct {
	repo     core.Repository
	issuer   *jwt.Issuer
	legacy   LegacyVerifier // nil salvo modo legacy habilitado
	cache    cache.Cache    // opcional, lookup de credentials
	cacheTTL time.Duration
	now      func() time.Time
}

func NewGate(repo core.Repository, issuer *jwt.Issuer, legacy LegacyVerifier) *Gate {
	return &Gate{repo: repo, issuer: issuer, legacy: legacy, now: time.Now}
}

// WithClock reemplaza el reloj (tests de ventana anti-replay).
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// WithCache activa el cache de credentials por id. TTL corto: un claim
// ajeno puede tardar hasta ttl en verse, por eso además hay invalidación
// explícita tras claim/delete.
func (g *Gate) WithCache(c cache.Cache, ttl time.Duration) *Gate {
	g.cache = c
	g.cacheTTL = ttl
	return g
}

// ------- User track -------

// VerifyUser valida un bearer token y devuelve el principal de usuario.
// No hay fuente de identidad alternativa: si el token no valida localmente
// (y el modo legacy está apagado) el track falla.
func (g *Gate) VerifyUser(ctx context.Context, bearer string) (*UserPrincipal, error) {
	if bearer == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}

	claims, err := g.issuer.Parse(bearer)
	if err == nil {
		sub := jwt.ClaimString(claims, "sub")
		if sub == "" {
			return nil, fmt.Errorf("%w: token sin sub", ErrUnauthenticated)
		}
		return &UserPrincipal{ID: sub, Claims: claims}, nil
	}

	// Último recurso: identity provider externo (modo legacy, opcional).
	if g.legacy != nil {
		uid, lerr := g.legacy.VerifyBearer(ctx, bearer)
		if lerr == nil && uid != "" {
			logger.From(ctx).Warn("bearer validado por IdP legacy",
				logger.Component("gate"), logger.UserID(uid))
			return &UserPrincipal{ID: uid, Claims: map[string]any{"sub": uid, "amr": "legacy"}}, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
}

// ------- Device track -------

// DeviceRequest es lo que el track de device necesita de un request HTTP.
// El middleware lo arma; el gate no toca net/http.
type DeviceRequest struct {
	Method string

	// Identificadores encontrados, en orden de prioridad de resolución:
	// path/query/body primero, header después.
	PathID   string
	QueryID  string
	BodyID   string
	HeaderID string // X-Device-Id

	APIKey    string // X-Device-Key (fallback legacy/bootstrap)
	Timestamp string // X-Ts
	Signature string // X-Signature
	Body      []byte // body crudo, tal como llegó
}

// explicitID devuelve el id de params/query/body (prioridad §device track).
func (r DeviceRequest) explicitID() string {
	for _, id := range []string{r.PathID, r.QueryID, r.BodyID} {
		if id != "" {
			return id
		}
	}
	return ""
}

// VerifyDevice resuelve la credential del device y verifica la firma del
// request. El orden es firma-primero: ningún dato de ownership sale de acá
// sin una firma válida.
func (g *Gate) VerifyDevice(ctx context.Context, req DeviceRequest) (*DevicePrincipal, error) {
	explicit := req.explicitID()

	// Header y body/params en desacuerdo: rechazar, no elegir en silencio.
	if explicit != "" && req.HeaderID != "" && explicit != req.HeaderID {
		return nil, fmt.Errorf("%w: header=%s body=%s", ErrDeviceIDConflict, req.HeaderID, explicit)
	}

	id := explicit
	if id == "" {
		id = req.HeaderID
	}

	var (
		cred      *core.DeviceCredential
		err       error
		viaAPIKey bool
	)
	switch {
	case id != "":
		cred, err = g.lookupCredential(ctx, id)
	case req.APIKey != "":
		// Solo para ubicar el secreto de firma; el principal resultante no
		// puede satisfacer ownership.
		cred, err = g.repo.GetDeviceCredentialByAPIKey(ctx, req.APIKey)
		viaAPIKey = true
	default:
		return nil, ErrNoDeviceID
	}
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDeviceUnknown, id)
		}
		return nil, err
	}

	if err := signature.Verify(req.Method, req.Timestamp, req.Body, req.Signature, cred.APIKey, g.now()); err != nil {
		// La causa exacta (missing/stale/mismatch) queda en logs; el caller
		// ve una sola condición 403-class.
		logger.From(ctx).Warn("firma de device rechazada",
			logger.Component("gate"), logger.DeviceID(cred.ID), logger.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	dp := &DevicePrincipal{ID: cred.ID, Credential: cred, ViaAPIKey: viaAPIKey}
	if cred.Claimed && cred.UserID != nil {
		dp.OwnerID = *cred.UserID
	}
	return dp, nil
}

const credCachePrefix = "cred:"

// lookupCredential es cache-aside sobre el repo. El path por API key nunca
// pasa por acá: la key no es un identificador estable para cachear.
func (g *Gate) lookupCredential(ctx context.Context, id string) (*core.DeviceCredential, error) {
	if g.cache == nil {
		return g.repo.GetDeviceCredential(ctx, id)
	}
	if b, ok := g.cache.Get(credCachePrefix + id); ok {
		var c core.DeviceCredential
		if err := json.Unmarshal(b, &c); err == nil {
			return &c, nil
		}
	}
	cred, err := g.repo.GetDeviceCredential(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, merr := json.Marshal(cred); merr == nil {
		g.cache.Set(credCachePrefix+id, b, g.cacheTTL)
	}
	return cred, nil
}

// InvalidateCredential saca la credential del cache. Llamar tras claim o
// delete para que el próximo request firmado vea el estado nuevo.
func (g *Gate) InvalidateCredential(id string) {
	if g != nil && g.cache != nil {
		g.cache.Delete(credCachePrefix + id)
	}
}

// ------- Combinators -------

// AuthorizeDeviceAction es el único combinator que hace check de ownership:
// exige ambos tracks válidos y que el owner de la credential sea el usuario
// resuelto. Cualquier mismatch es Forbidden, nunca un pass-through parcial.
// La validez de firma ya quedó garantizada por VerifyDevice (firma-primero).
func AuthorizeDeviceAction(user *UserPrincipal, device *DevicePrincipal) error {
	if user == nil || device == nil {
		return fmt.Errorf("%w: incomplete principal", ErrForbidden)
	}
	if device.ViaAPIKey {
		return fmt.Errorf("%w: api-key path cannot prove ownership", ErrForbidden)
	}
	if !device.Credential.Claimed || device.OwnerID == "" {
		return fmt.Errorf("%w: device not claimed", ErrForbidden)
	}
	if device.OwnerID != user.ID {
		return fmt.Errorf("%w: device owned by another user", ErrForbidden)
	}
	return nil
}
