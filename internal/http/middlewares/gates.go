package middlewares

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/homesentry/internal/auth"
	"github.com/dropDatabas3/homesentry/internal/http/httpx"
)

// Headers del track de device.
const (
	HeaderDeviceID  = "X-Device-Id"
	HeaderDeviceKey = "X-Device-Key"
	HeaderTimestamp = "X-Ts"
	HeaderSignature = "X-Signature"
)

// maxSignedBody limita el body que se bufferiza para verificar firma.
const maxSignedBody = 1 << 20

// RejectHook recibe el motivo de cada rechazo de los gates (métricas).
// Se setea una vez en el wiring; nil es no-op.
var RejectHook func(reason string)

func reject(w http.ResponseWriter, err error) {
	if RejectHook != nil {
		RejectHook(rejectReason(err))
	}
	httpx.WriteAuthError(w, err)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrDeviceUnknown):
		return "device_unknown"
	case errors.Is(err, auth.ErrSignatureInvalid):
		return "signature"
	case errors.Is(err, auth.ErrForbidden):
		return "ownership"
	case errors.Is(err, auth.ErrNoDeviceID), errors.Is(err, auth.ErrDeviceIDConflict):
		return "device_id"
	default:
		return "bearer"
	}
}

// bearerFrom extrae el token del header Authorization.
func bearerFrom(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// bufferBody lee el body completo (cap maxSignedBody) y lo repone para que
// el handler pueda volver a leerlo. La firma se computa sobre estos bytes.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(b))
	return b, nil
}

// deviceIDFromBody saca device_id de un body JSON ya bufferizado.
func deviceIDFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var tmp struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal(body, &tmp); err != nil {
		return ""
	}
	return tmp.DeviceID
}

// deviceRequestFrom arma el DeviceRequest que consume el gate: ids de
// path/query/body/header, credenciales de firma y el body crudo.
func deviceRequestFrom(r *http.Request, body []byte) auth.DeviceRequest {
	return auth.DeviceRequest{
		Method:    r.Method,
		PathID:    chi.URLParam(r, "device_id"),
		QueryID:   r.URL.Query().Get("device_id"),
		BodyID:    deviceIDFromBody(body),
		HeaderID:  strings.TrimSpace(r.Header.Get(HeaderDeviceID)),
		APIKey:    strings.TrimSpace(r.Header.Get(HeaderDeviceKey)),
		Timestamp: strings.TrimSpace(r.Header.Get(HeaderTimestamp)),
		Signature: strings.TrimSpace(r.Header.Get(HeaderSignature)),
		Body:      body,
	}
}

// RequireUser exige un bearer de usuario válido (política Identity-only).
func RequireUser(gate *auth.Gate) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			up, err := gate.VerifyUser(r.Context(), bearerFrom(r))
			if err != nil {
				reject(w, err)
				return
			}
			ctx := auth.WithPrincipal(r.Context(), &auth.Principal{User: up})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireDevice exige una firma de device válida (política Device-exists).
// No mira ownership: un device existente y bien firmado pasa aunque no esté
// reclamado.
func RequireDevice(gate *auth.Gate) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := bufferBody(r)
			if err != nil {
				reject(w, auth.ErrUnauthenticated)
				return
			}
			dp, err := gate.VerifyDevice(r.Context(), deviceRequestFrom(r, body))
			if err != nil {
				reject(w, err)
				return
			}
			ctx := auth.WithPrincipal(r.Context(), &auth.Principal{Device: dp})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireDeviceAction exige los dos tracks a la vez y que el usuario del
// bearer sea el owner de la credential firmante (política Device-action).
// Un mismatch de ownership es 403, nunca 401: la autenticación de ambos
// tracks ya pasó.
func RequireDeviceAction(gate *auth.Gate) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			up, err := gate.VerifyUser(r.Context(), bearerFrom(r))
			if err != nil {
				reject(w, err)
				return
			}
			body, err := bufferBody(r)
			if err != nil {
				reject(w, auth.ErrUnauthenticated)
				return
			}
			dp, err := gate.VerifyDevice(r.Context(), deviceRequestFrom(r, body))
			if err != nil {
				reject(w, err)
				return
			}
			if err := auth.AuthorizeDeviceAction(up, dp); err != nil {
				reject(w, err)
				return
			}
			ctx := auth.WithPrincipal(r.Context(), &auth.Principal{User: up, Device: dp})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
