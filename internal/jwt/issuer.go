// Package jwt emite y valida los access tokens de usuario: JWT HS256
// firmados con un secreto compartido de proceso. Los tokens son stateless;
// la verificación solo necesita el secreto y el reloj.
package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const minSecretLen = 32 // HS256: exigimos >=32 bytes de secreto

var (
	ErrInvalidToken  = errors.New("invalid_jwt")
	ErrInvalidIssuer = errors.New("invalid_issuer")
	ErrExpired       = errors.New("expired")
)

// Issuer firma access tokens con el secreto compartido.
type Issuer struct {
	Iss       string
	Secret    []byte
	AccessTTL time.Duration // default 15m
}

// NewIssuer valida el secreto al construir: un secreto ausente o corto es un
// error de configuración que debe abortar el arranque, no fallar por request.
func NewIssuer(iss, secret string, accessTTL time.Duration) (*Issuer, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("jwt: signing secret requiere >=%d bytes, obtuvo %d", minSecretLen, len(secret))
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &Issuer{Iss: iss, Secret: []byte(secret), AccessTTL: accessTTL}, nil
}

// IssueAccess emite un access token para el usuario dado.
func (i *Issuer) IssueAccess(sub string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)

	claims := jwtv5.MapClaims{
		"iss": i.Iss,
		"sub": sub,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse valida firma, iss y exp/nbf de un token emitido por este issuer.
func (i *Issuer) Parse(token string) (map[string]any, error) {
	return ParseHS256(token, i.Secret, i.Iss)
}
