package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPLegacyVerifier pregunta al identity provider externo si un bearer es
// válido (GET {baseURL}/user con el token). Es el camino lento y deprecado;
// solo se instala cuando auth.legacy_introspect está habilitado por config.
type HTTPLegacyVerifier struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPLegacyVerifier(baseURL string) *HTTPLegacyVerifier {
	return &HTTPLegacyVerifier{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (v *HTTPLegacyVerifier) VerifyBearer(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.BaseURL+"/user", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("legacy idp: status %d", resp.StatusCode)
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.ID == "" {
		return "", fmt.Errorf("legacy idp: respuesta sin id")
	}
	return body.ID, nil
}
