package core

import (
	"encoding/json"
	"time"
)

// DeviceCredential es la fila de device_credentials: el secreto simétrico
// pre-compartido de un device físico más su estado de claim.
// Se crea en estado claimed=false (provisioning, CLI) y un usuario la
// reclama exactamente una vez.
type DeviceCredential struct {
	ID        string // UUID elegido por el device
	APIKey    string // secreto simétrico por device (firma HMAC)
	Claimed   bool
	UserID    *string // owner; nil hasta que alguien reclama
	CreatedAt time.Time
}

// Device es el registro visible para el usuario: vincula una credential
// reclamada con su dueño y un nombre amigable.
type Device struct {
	ID           string
	UserID       string
	CredentialID string
	Name         string
	CreatedAt    time.Time
}

// RefreshToken persiste SOLO el hash del token opaco; el plaintext nunca
// toca la base.
type RefreshToken struct {
	ID          string
	UserID      string
	TokenHash   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
	RotatedFrom *string
}

// Identity es una identidad local email+password (argon2id).
type Identity struct {
	UserID        string
	Email         string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
}

// Profile son los datos de display del usuario.
type Profile struct {
	UserID    string
	Contact   string
	FullName  string
	AvatarURL string
	UpdatedAt time.Time
}

// PendingProfile guarda full_name/avatar entre signup y confirmación de email.
type PendingProfile struct {
	Contact   string
	FullName  string
	AvatarURL string
}

// Event es una detección reportada por un device (audio/video trigger).
type Event struct {
	ID         string
	DeviceID   string // credential UUID del device que reporta
	UserID     string // owner al momento del evento
	EventType  string
	OccurredAt time.Time
	Details    json.RawMessage
	CreatedAt  time.Time
}

// FaceEncoding guarda el vector biométrico cifrado (AES-GCM, base64).
// Encoding nunca se persiste en claro.
type FaceEncoding struct {
	ID        string
	UserID    string
	Name      string
	Encoding  string
	CreatedAt time.Time
}
