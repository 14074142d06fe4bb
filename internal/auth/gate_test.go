package auth

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/homesentry/internal/jwt"
	"github.com/dropDatabas3/homesentry/internal/security/signature"
	"github.com/dropDatabas3/homesentry/internal/store/core"
	"github.com/dropDatabas3/homesentry/internal/store/memory"
)

const gateSecret = "an-hs256-secret-of-32-bytes-min!!"

func newTestGate(t *testing.T) (*Gate, *memory.Store, *jwt.Issuer) {
	t.Helper()
	repo := memory.New()
	issuer, err := jwt.NewIssuer("https://homesentry.test", gateSecret, 15*time.Minute)
	require.NoError(t, err)
	return NewGate(repo, issuer, nil), repo, issuer
}

func signedDeviceRequest(t *testing.T, method, id, apiKey string, body []byte) DeviceRequest {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := signature.Sign(method, ts, body, apiKey)
	require.NoError(t, err)
	return DeviceRequest{
		Method:    method,
		HeaderID:  id,
		Timestamp: ts,
		Signature: sig,
		Body:      body,
	}
}

func TestVerifyUser_Bearer(t *testing.T) {
	t.Parallel()
	g, _, issuer := newTestGate(t)
	ctx := context.Background()

	tok, _, err := issuer.IssueAccess("user-1")
	require.NoError(t, err)

	up, err := g.VerifyUser(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", up.ID)

	_, err = g.VerifyUser(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = g.VerifyUser(ctx, "garbage.token.value")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifyDevice_SignedRequest(t *testing.T) {
	t.Parallel()
	g, repo, _ := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateDeviceCredential(ctx, &core.DeviceCredential{ID: "d1", APIKey: "k1"}))

	body := []byte(`{"event_type":"audio_trigger"}`)
	dp, err := g.VerifyDevice(ctx, signedDeviceRequest(t, "POST", "d1", "k1", body))
	require.NoError(t, err)
	assert.Equal(t, "d1", dp.ID)
	assert.Empty(t, dp.OwnerID, "sin claim no hay owner")
	assert.False(t, dp.ViaAPIKey)
}

func TestVerifyDevice_UnknownVsBadSignatureVsNoID(t *testing.T) {
	t.Parallel()
	g, repo, _ := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateDeviceCredential(ctx, &core.DeviceCredential{ID: "d1", APIKey: "k1"}))

	// device desconocido: 404-class
	_, err := g.VerifyDevice(ctx, signedDeviceRequest(t, "POST", "ghost", "k1", nil))
	assert.ErrorIs(t, err, ErrDeviceUnknown)

	// firma con el secreto equivocado: 403-class
	req := signedDeviceRequest(t, "POST", "d1", "wrong-key", nil)
	_, err = g.VerifyDevice(ctx, req)
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	// sin identificador: 400-class
	_, err = g.VerifyDevice(ctx, DeviceRequest{Method: "POST"})
	assert.ErrorIs(t, err, ErrNoDeviceID)
}

func TestVerifyDevice_ReplayWindow(t *testing.T) {
	t.Parallel()
	g, repo, _ := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateDeviceCredential(ctx, &core.DeviceCredential{ID: "d1", APIKey: "k1"}))

	// firma válida pero vieja: el reloj del gate avanzó 2 minutos
	req := signedDeviceRequest(t, "POST", "d1", "k1", nil)
	g.WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) })

	_, err := g.VerifyDevice(ctx, req)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyDevice_IDConflict(t *testing.T) {
	t.Parallel()
	g, repo, _ := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateDeviceCredential(ctx, &core.DeviceCredential{ID: "d1", APIKey: "k1"}))
	require.NoError(t, repo.CreateDeviceCredential(ctx, &core.DeviceCredential{ID: "d2", APIKey: "k2"}))

	// prueba control de d1 por header pero referencia d2 en el body
	req := signedDeviceRequest(t, "POST", "d1", "k1", nil)
	req.BodyID = "d2"
	_, err := g.VerifyDevice(ctx, req)
	assert.ErrorIs(t, err, ErrDeviceIDConflict)

	// si coinciden, pasa
	req = signedDeviceRequest(t, "POST", "d1", "k1", nil)
	req.BodyID = "d1"
	_, err = g.VerifyDevice(ctx, req)
	assert.NoError(t, err)
}

func TestVerifyDevice_APIKeyFallback(t *testing.T) {
	t.Parallel()
	g, repo, _ := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateDeviceCredential(ctx, &core.DeviceCredential{ID: "d1", APIKey: "k1"}))

	req := signedDeviceRequest(t, "GET", "", "k1", nil)
	req.APIKey = "k1"
	dp, err := g.VerifyDevice(ctx, req)
	require.NoError(t, err)
	assert.True(t, dp.ViaAPIKey)
	assert.Equal(t, "d1", dp.ID)
}

func TestAuthorizeDeviceAction(t *testing.T) {
	t.Parallel()
	g, repo, issuer := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateDeviceCredential(ctx, &core.DeviceCredential{ID: "d1", APIKey: "k1"}))

	// device sin reclamar: Device-exists pasa, Device-action no
	dp, err := g.VerifyDevice(ctx, signedDeviceRequest(t, "POST", "d1", "k1", nil))
	require.NoError(t, err)

	tok, _, _ := issuer.IssueAccess("u1")
	up, err := g.VerifyUser(ctx, tok)
	require.NoError(t, err)

	assert.ErrorIs(t, AuthorizeDeviceAction(up, dp), ErrForbidden)

	// u1 reclama d1: ahora Device-action pasa para u1
	_, err = repo.ClaimDevice(ctx, "d1", "u1", "front door cam")
	require.NoError(t, err)
	dp, err = g.VerifyDevice(ctx, signedDeviceRequest(t, "POST", "d1", "k1", nil))
	require.NoError(t, err)
	assert.NoError(t, AuthorizeDeviceAction(up, dp))

	// token válido de u2 + headers correctos de d1: Forbidden, nunca 401
	tok2, _, _ := issuer.IssueAccess("u2")
	up2, err := g.VerifyUser(ctx, tok2)
	require.NoError(t, err)
	assert.ErrorIs(t, AuthorizeDeviceAction(up2, dp), ErrForbidden)

	// principal incompleto
	assert.ErrorIs(t, AuthorizeDeviceAction(nil, dp), ErrForbidden)
	assert.ErrorIs(t, AuthorizeDeviceAction(up, nil), ErrForbidden)
}

func TestAuthorizeDeviceAction_APIKeyPathNeverOwns(t *testing.T) {
	t.Parallel()
	g, repo, issuer := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateDeviceCredential(ctx, &core.DeviceCredential{ID: "d1", APIKey: "k1"}))
	_, err := repo.ClaimDevice(ctx, "d1", "u1", "cam")
	require.NoError(t, err)

	req := signedDeviceRequest(t, "GET", "", "k1", nil)
	req.APIKey = "k1"
	dp, err := g.VerifyDevice(ctx, req)
	require.NoError(t, err)

	tok, _, _ := issuer.IssueAccess("u1")
	up, _ := g.VerifyUser(ctx, tok)

	// aunque el owner real sea u1, el path por API key no prueba ownership
	assert.ErrorIs(t, AuthorizeDeviceAction(up, dp), ErrForbidden)
}

type staticLegacy struct{ id string }

func (s staticLegacy) VerifyBearer(ctx context.Context, token string) (string, error) {
	return s.id, nil
}

func TestVerifyUser_LegacyFallbackOnlyWhenInstalled(t *testing.T) {
	t.Parallel()
	repo := memory.New()
	issuer, err := jwt.NewIssuer("https://homesentry.test", gateSecret, time.Minute)
	require.NoError(t, err)

	// sin legacy: token externo inválido → Unauthenticated
	g := NewGate(repo, issuer, nil)
	_, err = g.VerifyUser(context.Background(), "external-opaque-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// con legacy instalado: el fallback resuelve
	g = NewGate(repo, issuer, staticLegacy{id: "legacy-user"})
	up, err := g.VerifyUser(context.Background(), "external-opaque-token")
	require.NoError(t, err)
	assert.Equal(t, "legacy-user", up.ID)
}
