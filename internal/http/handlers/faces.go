package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/homesentry/internal/audit"
	"github.com/dropDatabas3/homesentry/internal/auth"
	"github.com/dropDatabas3/homesentry/internal/http/httpx"
	"github.com/dropDatabas3/homesentry/internal/observability/logger"
	"github.com/dropDatabas3/homesentry/internal/security/secretbox"
	"github.com/dropDatabas3/homesentry/internal/store/core"
)

// AddFace cifra el vector facial con la master key y persiste solo el blob.
// El vector en claro nunca toca la base (gate Identity-only).
func (h *Handlers) AddFace(w http.ResponseWriter, r *http.Request) {
	up, ok := auth.UserFrom(r.Context())
	if !ok {
		httpx.WriteAuthError(w, auth.ErrUnauthenticated)
		return
	}
	var req struct {
		Name     string    `json:"name"`
		Encoding []float64 `json:"encoding"`
	}
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if len(req.Encoding) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "falta encoding", 1103)
		return
	}

	blob, err := secretbox.EncryptVector(req.Encoding)
	if err != nil {
		logger.From(r.Context()).Error("cifrado de encoding falló", logger.UserID(up.ID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "encryption_failed", "no se pudo cifrar el vector", 1501)
		return
	}

	f := &core.FaceEncoding{UserID: up.ID, Name: req.Name, Encoding: blob}
	if err := h.Repo.InsertFaceEncoding(r.Context(), f); err != nil {
		logger.From(r.Context()).Error("insert de encoding falló", logger.UserID(up.ID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}
	audit.Log(r.Context(), audit.FacesAdded, logger.UserID(up.ID), logger.String("face_id", f.ID))
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":         f.ID,
		"name":       f.Name,
		"dimensions": len(req.Encoding),
		"created_at": f.CreatedAt,
	})
}

type faceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Encoding  []float64 `json:"encoding"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFaces descifra los vectores del usuario al vuelo. Un fallo de
// descifrado (tamper, clave rotada mal) es 500 explícito: jamás se degrada
// a lista vacía, eso escondería pérdida de datos.
func (h *Handlers) ListFaces(w http.ResponseWriter, r *http.Request) {
	up, ok := auth.UserFrom(r.Context())
	if !ok {
		httpx.WriteAuthError(w, auth.ErrUnauthenticated)
		return
	}
	rows, err := h.Repo.ListFaceEncodings(r.Context(), up.ID)
	if err != nil {
		logger.From(r.Context()).Error("list de encodings falló", logger.UserID(up.ID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}

	out := make([]faceResponse, 0, len(rows))
	for _, f := range rows {
		vec, err := secretbox.DecryptVector(f.Encoding)
		if err != nil {
			if errors.Is(err, secretbox.ErrDecryptionFailed) {
				logger.From(r.Context()).Error("encoding no descifrable, posible tamper o clave incorrecta",
					logger.UserID(up.ID), logger.String("face_id", f.ID))
			}
			httpx.WriteError(w, http.StatusInternalServerError, "decryption_failed", "no se pudo descifrar un vector almacenado", 1502)
			return
		}
		out = append(out, faceResponse{ID: f.ID, Name: f.Name, Encoding: vec, CreatedAt: f.CreatedAt})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"faces": out})
}

// DeleteFaces borra todos los vectores del usuario. Idempotente.
func (h *Handlers) DeleteFaces(w http.ResponseWriter, r *http.Request) {
	up, ok := auth.UserFrom(r.Context())
	if !ok {
		httpx.WriteAuthError(w, auth.ErrUnauthenticated)
		return
	}
	if err := h.Repo.DeleteFaceEncodings(r.Context(), up.ID); err != nil {
		logger.From(r.Context()).Error("delete de encodings falló", logger.UserID(up.ID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
		return
	}
	audit.Log(r.Context(), audit.FacesDeleted, logger.UserID(up.ID))
	w.WriteHeader(http.StatusNoContent)
}
