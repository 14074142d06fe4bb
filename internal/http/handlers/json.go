package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// jsonDecoderLimited devuelve un decoder sobre el body (cap max bytes), o
// nil si el request no trae JSON. Para lecturas secundarias y tolerantes
// donde httpx.ReadJSON sería demasiado ruidoso.
func jsonDecoderLimited(r *http.Request, max int64) *json.Decoder {
	if r.Body == nil {
		return nil
	}
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		return nil
	}
	return json.NewDecoder(io.LimitReader(r.Body, max))
}
