// Package signature implementa el esquema de firma HMAC de requests de
// devices: mensaje canónico method + "\n" + ts + "\n" + sha256hex(body),
// firmado con HMAC-SHA256 sobre el secreto pre-compartido del device.
//
// El body se hashea en lugar de embeberse para acotar el tamaño del mensaje
// y evitar ambigüedad de re-serialización JSON.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// ReplayWindow es la tolerancia máxima entre el timestamp firmado y la hora
// del server. Fuera de la ventana el request se rechaza aunque la firma sea
// correcta.
const ReplayWindow = 60 * time.Second

var (
	// ErrMissingInput: falta firma, timestamp o secreto. Se rechaza antes de
	// computar el HMAC.
	ErrMissingInput = errors.New("signature: missing input")

	// ErrBadTimestamp: el timestamp no es un unix epoch parseable.
	ErrBadTimestamp = errors.New("signature: bad timestamp")

	// ErrStaleTimestamp: timestamp fuera de la ventana anti-replay.
	ErrStaleTimestamp = errors.New("signature: timestamp outside replay window")

	// ErrMismatch: la firma no corresponde al mensaje.
	ErrMismatch = errors.New("signature: mismatch")
)

// CanonicalMessage construye el string canónico a firmar.
func CanonicalMessage(method, timestamp string, body []byte) string {
	sum := sha256.Sum256(body)
	return method + "\n" + timestamp + "\n" + hex.EncodeToString(sum[:])
}

// Sign computa la firma hex de un request.
// timestamp es unix epoch en segundos, en decimal.
func Sign(method, timestamp string, body []byte, secret string) (string, error) {
	if method == "" || timestamp == "" || secret == "" {
		return "", ErrMissingInput
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(CanonicalMessage(method, timestamp, body)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify valida la firma de un request contra el secreto del device.
// Aplica la ventana anti-replay ANTES de aceptar cualquier firma y compara
// en tiempo constante (hmac.Equal); una comparación byte a byte filtraría
// por timing cuántos bytes del prefijo coinciden.
func Verify(method, timestamp string, body []byte, provided, secret string, now time.Time) error {
	if method == "" || timestamp == "" || provided == "" || secret == "" {
		return ErrMissingInput
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}
	delta := now.Sub(time.Unix(ts, 0))
	if delta < 0 {
		delta = -delta
	}
	if delta > ReplayWindow {
		return ErrStaleTimestamp
	}

	expected, err := Sign(method, timestamp, body, secret)
	if err != nil {
		return err
	}
	expBytes, err := hex.DecodeString(expected)
	if err != nil {
		return ErrMismatch
	}
	gotBytes, err := hex.DecodeString(provided)
	if err != nil {
		return ErrMismatch
	}
	if !hmac.Equal(expBytes, gotBytes) {
		return ErrMismatch
	}
	return nil
}
