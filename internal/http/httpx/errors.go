// Package httpx son los helpers HTTP compartidos por handlers y middlewares:
// respuestas JSON, errores con código y el mapeo de la taxonomía de auth.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/homesentry/internal/auth"
)

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorCode        int    `json:"error_code,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, desc string, errCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get("X-Request-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		ErrorCode:        errCode,
		RequestID:        rid,
	})
}

// WriteAuthError mapea la taxonomía de errores del gate a HTTP. El orden de
// los casos importa: señales específicas (404/400/403) antes que el 401
// genérico.
func WriteAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrDeviceUnknown):
		WriteError(w, http.StatusNotFound, "device_not_found", "device desconocido", 1204)
	case errors.Is(err, auth.ErrNoDeviceID):
		WriteError(w, http.StatusBadRequest, "missing_device_id", "falta device id", 1201)
	case errors.Is(err, auth.ErrDeviceIDConflict):
		WriteError(w, http.StatusBadRequest, "device_id_conflict", "device id ambiguo entre header y body", 1202)
	case errors.Is(err, auth.ErrSignatureInvalid):
		WriteError(w, http.StatusForbidden, "invalid_signature", "firma inválida o fuera de ventana", 1203)
	case errors.Is(err, auth.ErrForbidden):
		WriteError(w, http.StatusForbidden, "forbidden", "no autorizado sobre este recurso", 1301)
	default:
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "credenciales inválidas", 1101)
	}
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON: decodifica JSON de forma tolerante (NO falla por campos desconocidos).
// Valida Content-Type y limita el tamaño del body a 1MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, http.StatusBadRequest, "invalid_json", "Content-Type debe ser application/json", 1102)
		return false
	}
	// máx 1MB
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	// NOTA: NO usamos DisallowUnknownFields para no romper por campos extra.
	if err := dec.Decode(v); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "invalid_json", "json inválido", 1102)
		return false
	}
	return true
}
