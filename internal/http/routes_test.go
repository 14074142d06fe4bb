package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/homesentry/internal/auth"
	"github.com/dropDatabas3/homesentry/internal/http/handlers"
	"github.com/dropDatabas3/homesentry/internal/identity"
	"github.com/dropDatabas3/homesentry/internal/jwt"
	"github.com/dropDatabas3/homesentry/internal/security/secretbox"
	"github.com/dropDatabas3/homesentry/internal/security/signature"
	"github.com/dropDatabas3/homesentry/internal/session"
	"github.com/dropDatabas3/homesentry/internal/store/core"
	"github.com/dropDatabas3/homesentry/internal/store/memory"
)

const testJWTSecret = "an-hs256-secret-of-32-bytes-min!!"

type captureMailer struct{ link string }

func (m *captureMailer) SendVerification(_, link string) error {
	m.link = link
	return nil
}

func (m *captureMailer) token(t *testing.T) string {
	t.Helper()
	i := strings.Index(m.link, "token=")
	require.GreaterOrEqual(t, i, 0, "el mail no trae token: %q", m.link)
	return m.link[i+len("token="):]
}

type testEnv struct {
	router http.Handler
	repo   *memory.Store
	issuer *jwt.Issuer
	mailer *captureMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := memory.New()
	issuer, err := jwt.NewIssuer("https://homesentry.test", testJWTSecret, 15*time.Minute)
	require.NoError(t, err)

	gate := auth.NewGate(repo, issuer, nil)
	sessions := session.NewManager(repo, issuer, 720*time.Hour)
	mailer := &captureMailer{}
	ident := identity.New(repo, mailer, "http://homesentry.test", 48*time.Hour)

	h := &handlers.Handlers{
		Repo:     repo,
		Identity: ident,
		Sessions: sessions,
		Gate:     gate,
	}
	router := NewRouter(RouterConfig{Handlers: h, Gate: gate})
	return &testEnv{router: router, repo: repo, issuer: issuer, mailer: mailer}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func jsonReq(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// signedReq arma un request firmado como lo haría el firmware del device.
func signedReq(t *testing.T, method, path, deviceID, apiKey string, body any) *http.Request {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := signature.Sign(method, ts, raw, apiKey)
	require.NoError(t, err)
	req.Header.Set("X-Device-Id", deviceID)
	req.Header.Set("X-Ts", ts)
	req.Header.Set("X-Signature", sig)
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	t.Fatal("no hay cookie refresh_token en la respuesta")
	return nil
}

// seedUser registra y confirma una cuenta, devuelve el access token.
func (e *testEnv) seedUser(t *testing.T, email string) (userID, access string) {
	t.Helper()
	w := e.do(t, jsonReq(t, "POST", "/auth/signup", map[string]string{
		"email": email, "password": "superseguro1",
	}))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	req := httptest.NewRequest("GET", "/auth/confirm_email?token="+e.mailer.token(t), nil)
	w = e.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, jsonReq(t, "POST", "/auth/login", map[string]string{
		"email": email, "password": "superseguro1",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	decode(t, w, &resp)
	return resp.UserID, resp.AccessToken
}

func (e *testEnv) seedCredential(t *testing.T, id, key string) {
	t.Helper()
	require.NoError(t, e.repo.CreateDeviceCredential(context.Background(), &core.DeviceCredential{
		ID: id, APIKey: key, CreatedAt: time.Now().UTC(),
	}))
}

func TestAuthFlow_SignupConfirmLoginRefresh(t *testing.T) {
	e := newTestEnv(t)

	userID, access := e.seedUser(t, "ana@example.com")
	require.NotEmpty(t, access)

	// /auth/me con bearer
	req := httptest.NewRequest("GET", "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w := e.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// login de nuevo para capturar cookie
	w = e.do(t, jsonReq(t, "POST", "/auth/login", map[string]string{
		"email": "ana@example.com", "password": "superseguro1",
	}))
	require.Equal(t, http.StatusOK, w.Code)
	first := refreshCookie(t, w)
	assert.True(t, first.HttpOnly)

	// refresh rota la cookie
	req = httptest.NewRequest("POST", "/auth/refresh", nil)
	req.AddCookie(first)
	w = e.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	second := refreshCookie(t, w)
	assert.NotEqual(t, first.Value, second.Value)

	// misma forma de respuesta que login: access nuevo + identidad del dueño
	var refreshed struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		UserID      string `json:"user_id"`
	}
	decode(t, w, &refreshed)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, "Bearer", refreshed.TokenType)
	assert.Equal(t, userID, refreshed.UserID)

	// el token viejo quedó revocado: reuso = 401
	req = httptest.NewRequest("POST", "/auth/refresh", nil)
	req.AddCookie(first)
	w = e.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// el nuevo sigue vivo
	req = httptest.NewRequest("POST", "/auth/refresh", nil)
	req.AddCookie(second)
	w = e.do(t, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthFlow_LoginBeforeConfirm(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, jsonReq(t, "POST", "/auth/signup", map[string]string{
		"email": "bob@example.com", "password": "superseguro1",
	}))
	require.Equal(t, http.StatusAccepted, w.Code)

	w = e.do(t, jsonReq(t, "POST", "/auth/login", map[string]string{
		"email": "bob@example.com", "password": "superseguro1",
	}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "email_not_verified")

	// el token se perdió: resend manda otro que sí destraba el login
	e.mailer.link = ""
	w = e.do(t, jsonReq(t, "POST", "/auth/resend_confirmation", map[string]string{
		"email": "bob@example.com",
	}))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	req := httptest.NewRequest("GET", "/auth/confirm_email?token="+e.mailer.token(t), nil)
	w = e.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, jsonReq(t, "POST", "/auth/login", map[string]string{
		"email": "bob@example.com", "password": "superseguro1",
	}))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// cuenta desconocida: mismo 202, sin oráculo de existencia
	w = e.do(t, jsonReq(t, "POST", "/auth/resend_confirmation", map[string]string{
		"email": "nadie@example.com",
	}))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestDeviceFlow_RegisterAndClaim(t *testing.T) {
	e := newTestEnv(t)
	e.seedCredential(t, "11111111-1111-1111-1111-111111111111", "clave-dev-1")

	// register firmado: anuncia presencia, sigue sin dueño
	w := e.do(t, signedReq(t, "POST", "/api/devices/register",
		"11111111-1111-1111-1111-111111111111", "clave-dev-1",
		map[string]string{"device_id": "11111111-1111-1111-1111-111111111111"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reg struct {
		DeviceID string `json:"device_id"`
		Claimed  bool   `json:"claimed"`
	}
	decode(t, w, &reg)
	assert.False(t, reg.Claimed)

	// claim por un usuario
	_, access := e.seedUser(t, "ana@example.com")
	req := jsonReq(t, "POST", "/api/devices/add_device", map[string]string{
		"device_id": "11111111-1111-1111-1111-111111111111",
		"name":      "porch cam",
	})
	req.Header.Set("Authorization", "Bearer "+access)
	w = e.do(t, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// segundo claim (otro usuario) choca
	_, access2 := e.seedUser(t, "eva@example.com")
	req = jsonReq(t, "POST", "/api/devices/add_device", map[string]string{
		"device_id": "11111111-1111-1111-1111-111111111111",
	})
	req.Header.Set("Authorization", "Bearer "+access2)
	w = e.do(t, req)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already_claimed")

	// claim de un id inexistente
	req = jsonReq(t, "POST", "/api/devices/add_device", map[string]string{
		"device_id": "99999999-9999-9999-9999-999999999999",
	})
	req.Header.Set("Authorization", "Bearer "+access)
	w = e.do(t, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// la lista del dueño tiene exactamente uno
	req = httptest.NewRequest("GET", "/api/devices/user_devices", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w = e.do(t, req)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Devices []struct {
			CredentialID string `json:"device_id"`
			Name         string `json:"name"`
		} `json:"devices"`
	}
	decode(t, w, &list)
	require.Len(t, list.Devices, 1)
	assert.Equal(t, "porch cam", list.Devices[0].Name)
}

func TestDeviceGate_BadSignatureAndUnknown(t *testing.T) {
	e := newTestEnv(t)
	e.seedCredential(t, "22222222-2222-2222-2222-222222222222", "clave-dev-2")

	// firma con otra clave
	w := e.do(t, signedReq(t, "POST", "/api/devices/register",
		"22222222-2222-2222-2222-222222222222", "clave-equivocada", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_signature")

	// device desconocido
	w = e.do(t, signedReq(t, "POST", "/api/devices/register",
		"33333333-3333-3333-3333-333333333333", "da-igual", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// sin identificador
	req := httptest.NewRequest("POST", "/api/devices/register", nil)
	w = e.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// header y body en desacuerdo: rechazo explícito
	w = e.do(t, signedReq(t, "POST", "/api/devices/register",
		"22222222-2222-2222-2222-222222222222", "clave-dev-2",
		map[string]string{"device_id": "33333333-3333-3333-3333-333333333333"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "device_id_conflict")
}

func TestDeviceAction_EventsOwnership(t *testing.T) {
	e := newTestEnv(t)
	const devID = "44444444-4444-4444-4444-444444444444"
	e.seedCredential(t, devID, "clave-dev-4")

	_, owner := e.seedUser(t, "ana@example.com")
	req := jsonReq(t, "POST", "/api/devices/add_device", map[string]string{"device_id": devID})
	req.Header.Set("Authorization", "Bearer "+owner)
	w := e.do(t, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// evento firmado por el device + bearer del dueño
	req = signedReq(t, "POST", "/api/events/add_event", devID, "clave-dev-4",
		map[string]any{"event_type": "motion", "details": map[string]any{"zone": 2}})
	req.Header.Set("Authorization", "Bearer "+owner)
	w = e.do(t, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// mismo request con bearer de otro usuario: 403
	_, intruder := e.seedUser(t, "eva@example.com")
	req = signedReq(t, "POST", "/api/events/add_event", devID, "clave-dev-4",
		map[string]any{"event_type": "motion"})
	req.Header.Set("Authorization", "Bearer "+intruder)
	w = e.do(t, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// event_type con formato inválido
	req = signedReq(t, "POST", "/api/events/add_event", devID, "clave-dev-4",
		map[string]any{"event_type": "NO;VALE"})
	req.Header.Set("Authorization", "Bearer "+owner)
	w = e.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// historial: el dueño lo ve
	req = httptest.NewRequest("GET", "/api/devices/"+devID+"/events", nil)
	req.Header.Set("Authorization", "Bearer "+owner)
	w = e.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var events struct {
		Events []struct {
			EventType string `json:"event_type"`
		} `json:"events"`
	}
	decode(t, w, &events)
	require.Len(t, events.Events, 1)
	assert.Equal(t, "motion", events.Events[0].EventType)

	// el intruso no
	req = httptest.NewRequest("GET", "/api/devices/"+devID+"/events", nil)
	req.Header.Set("Authorization", "Bearer "+intruder)
	w = e.do(t, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFaces_EncryptDecryptRoundTrip(t *testing.T) {
	secretbox.UnsafeResetForTests()
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, secretbox.Init(key))

	e := newTestEnv(t)
	_, access := e.seedUser(t, "ana@example.com")

	vec := []float64{0.12, -0.5, 3.25, 0}
	req := jsonReq(t, "POST", "/api/faces/", map[string]any{"name": "ana", "encoding": vec})
	req.Header.Set("Authorization", "Bearer "+access)
	w := e.do(t, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req = httptest.NewRequest("GET", "/api/faces/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w = e.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var faces struct {
		Faces []struct {
			Name     string    `json:"name"`
			Encoding []float64 `json:"encoding"`
		} `json:"faces"`
	}
	decode(t, w, &faces)
	require.Len(t, faces.Faces, 1)
	assert.Equal(t, vec, faces.Faces[0].Encoding)

	// delete idempotente
	req = httptest.NewRequest("DELETE", "/api/faces/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w = e.do(t, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest("DELETE", "/api/faces/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w = e.do(t, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
