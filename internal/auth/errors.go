package auth

import "errors"

// Taxonomía de fallas de autenticación/autorización. Los handlers mapean
// estos errores a status codes; el detalle interno va solo a logs.
var (
	// ErrUnauthenticated: no hay credencial del tipo requerido, o es inválida.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden: credencial válida pero sin autorización sobre el recurso
	// (p.ej. device no reclamado por este usuario).
	ErrForbidden = errors.New("forbidden")

	// ErrDeviceUnknown: el device id referido no existe (404-class).
	ErrDeviceUnknown = errors.New("device unknown")

	// ErrSignatureInvalid: firma HMAC inválida o timestamp fuera de la
	// ventana anti-replay (403-class).
	ErrSignatureInvalid = errors.New("device signature invalid")

	// ErrNoDeviceID: el request no trae ningún identificador de device
	// (400-class).
	ErrNoDeviceID = errors.New("no device identifier")

	// ErrDeviceIDConflict: el header X-Device-Id y el device_id del
	// body/params refieren devices distintos. Se rechaza en lugar de elegir
	// uno en silencio (confused deputy).
	ErrDeviceIDConflict = errors.New("conflicting device identifiers")
)
