package core

import (
	"context"
	"time"
)

// Repository es el contrato mínimo que el core de auth necesita del storage.
// Los adapters (pg, memory) lo implementan completo; todo error de "no existe"
// se reporta como ErrNotFound y todo choque de escritura como ErrConflict.
type Repository interface {
	Ping(ctx context.Context) error

	// ------- Device credentials (resolver) -------
	CreateDeviceCredential(ctx context.Context, c *DeviceCredential) error
	GetDeviceCredential(ctx context.Context, id string) (*DeviceCredential, error)
	GetDeviceCredentialByAPIKey(ctx context.Context, apiKey string) (*DeviceCredential, error)

	// ClaimDevice es el compare-and-swap de claim: claimed=false -> true con
	// owner=userID, más el alta de la fila Device, en un solo paso atómico.
	// Retorna ErrConflict si otro request ganó la carrera y ErrNotFound si la
	// credential no existe.
	ClaimDevice(ctx context.Context, credentialID, userID, name string) (*Device, error)

	// ------- Devices -------
	GetDeviceByCredential(ctx context.Context, credentialID string) (*Device, error)
	ListUserDevices(ctx context.Context, userID string) ([]Device, error)
	DeleteDevice(ctx context.Context, deviceID, userID string) error

	// ------- Refresh tokens -------
	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time, rotatedFrom *string) (string, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error

	// RotateRefreshToken inserta el token nuevo y revoca el viejo. El adapter
	// pg lo hace en una transacción; memory bajo su mutex.
	RotateRefreshToken(ctx context.Context, oldID, userID, newHash string, expiresAt time.Time) (string, error)

	// ------- Identities (login local) -------
	CreateIdentity(ctx context.Context, id *Identity) error
	GetIdentityByEmail(ctx context.Context, email string) (*Identity, error)
	GetIdentityByUserID(ctx context.Context, userID string) (*Identity, error)
	MarkEmailVerified(ctx context.Context, userID string) error

	// ------- Email verification tokens -------
	CreateEmailToken(ctx context.Context, userID string, tokenHash []byte, expiresAt time.Time) error
	ConsumeEmailToken(ctx context.Context, tokenHash []byte) (string, error)

	// ------- Profiles -------
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpsertProfile(ctx context.Context, p *Profile) error
	UpsertPendingProfile(ctx context.Context, p *PendingProfile) error
	GetPendingProfile(ctx context.Context, contact string) (*PendingProfile, error)
	DeletePendingProfile(ctx context.Context, contact string) error

	// ------- Events -------
	InsertEvent(ctx context.Context, e *Event) error
	ListDeviceEvents(ctx context.Context, deviceID string, limit int) ([]Event, error)

	// ------- Face encodings -------
	InsertFaceEncoding(ctx context.Context, f *FaceEncoding) error
	ListFaceEncodings(ctx context.Context, userID string) ([]FaceEncoding, error)
	DeleteFaceEncodings(ctx context.Context, userID string) error
}
