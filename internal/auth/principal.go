package auth

import (
	"context"

	"github.com/dropDatabas3/homesentry/internal/store/core"
)

// UserPrincipal es la mitad "usuario" de una identidad verificada.
type UserPrincipal struct {
	ID     string
	Claims map[string]any
}

// DevicePrincipal es la mitad "device" de una identidad verificada.
// OwnerID es "" mientras la credential no esté reclamada.
type DevicePrincipal struct {
	ID         string // credential UUID
	Credential *core.DeviceCredential
	OwnerID    string

	// ViaAPIKey marca que la credential se resolvió por API key (path
	// legacy/bootstrap sin device id). Ese camino solo sirve para ubicar el
	// secreto de firma; nunca satisface un check de ownership.
	ViaAPIKey bool
}

// Principal es la unión tipada que el gate adjunta al request: User, Device,
// o ambos. El código downstream decide por presencia de la mitad que le
// interesa, nunca por campos sueltos.
type Principal struct {
	User   *UserPrincipal
	Device *DevicePrincipal
}

type principalKey struct{}

// WithPrincipal inyecta el principal resuelto en el contexto.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extrae el principal del contexto. ok=false si ningún gate
// corrió sobre este request.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// UserFrom es un shortcut para la mitad usuario.
func UserFrom(ctx context.Context) (*UserPrincipal, bool) {
	if p, ok := PrincipalFrom(ctx); ok && p.User != nil {
		return p.User, true
	}
	return nil, false
}

// DeviceFrom es un shortcut para la mitad device.
func DeviceFrom(ctx context.Context) (*DevicePrincipal, bool) {
	if p, ok := PrincipalFrom(ctx); ok && p.Device != nil {
		return p.Device, true
	}
	return nil, false
}
