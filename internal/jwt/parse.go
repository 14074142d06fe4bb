package jwt

import (
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// ParseHS256 valida firma (HS256), chequea iss (si expectedIss != "") y
// valida exp/nbf con una pequeña tolerancia de reloj.
// Devuelve las claims como map[string]any.
func ParseHS256(token string, secret []byte, expectedIss string) (map[string]any, error) {
	keyfunc := func(t *jwtv5.Token) (any, error) {
		return secret, nil
	}

	// La validación de exp/nbf se hace a mano abajo para controlar la
	// tolerancia; acá solo firma y alg.
	tok, err := jwtv5.Parse(token, keyfunc,
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithoutClaimsValidation(),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	if expectedIss != "" {
		if iss, _ := claims["iss"].(string); iss != expectedIss {
			return nil, ErrInvalidIssuer
		}
	}

	now := time.Now()
	// exp: obligatorio. Un token sin expiración no se acepta nunca.
	expf, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}
	if time.Unix(int64(expf), 0).Before(now.Add(-30 * time.Second)) {
		return nil, ErrExpired
	}
	// nbf
	if nbff, ok := claims["nbf"].(float64); ok {
		if time.Unix(int64(nbff), 0).After(now.Add(30 * time.Second)) {
			return nil, ErrInvalidToken
		}
	}

	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out, nil
}

// ClaimString extrae una claim string de un mapa de claims.
func ClaimString(claims map[string]any, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
