// Package pg implementa core.Repository sobre PostgreSQL con pgxpool.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/homesentry/internal/store/core"
)

// Store es la conexión activa a PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open parsea el DSN, arma el pool y verifica la conexión.
func Open(ctx context.Context, dsn string, maxConns, minConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	} else {
		cfg.MaxConns = 10
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	} else {
		cfg.MinConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() { s.pool.Close() }

// Pool expone el pool para migraciones.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// isUniqueViolation detecta el código 23505 de PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ------- Device credentials -------

func (s *Store) CreateDeviceCredential(ctx context.Context, c *core.DeviceCredential) error {
	const query = `
		INSERT INTO device_credentials (device_uuid, api_key, claimed, user_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := s.pool.Exec(ctx, query, c.ID, c.APIKey, c.Claimed, c.UserID)
	if isUniqueViolation(err) {
		return core.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("pg: insert device credential: %w", err)
	}
	return nil
}

func (s *Store) GetDeviceCredential(ctx context.Context, id string) (*core.DeviceCredential, error) {
	const query = `
		SELECT device_uuid, api_key, claimed, user_id, created_at
		FROM device_credentials WHERE device_uuid = $1
	`
	return s.scanCredential(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) GetDeviceCredentialByAPIKey(ctx context.Context, apiKey string) (*core.DeviceCredential, error) {
	const query = `
		SELECT device_uuid, api_key, claimed, user_id, created_at
		FROM device_credentials WHERE api_key = $1
	`
	return s.scanCredential(s.pool.QueryRow(ctx, query, apiKey))
}

func (s *Store) scanCredential(row pgx.Row) (*core.DeviceCredential, error) {
	var c core.DeviceCredential
	err := row.Scan(&c.ID, &c.APIKey, &c.Claimed, &c.UserID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: scan device credential: %w", err)
	}
	return &c, nil
}

// ClaimDevice hace el CAS en una transacción: el UPDATE condicional sobre
// claimed=false decide al ganador; el perdedor ve 0 filas afectadas.
func (s *Store) ClaimDevice(ctx context.Context, credentialID, userID, name string) (*core.Device, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const claim = `
		UPDATE device_credentials
		SET claimed = TRUE, user_id = $2
		WHERE device_uuid = $1 AND claimed = FALSE
	`
	tag, err := tx.Exec(ctx, claim, credentialID, userID)
	if err != nil {
		return nil, fmt.Errorf("pg: claim credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// O no existe o ya estaba reclamada: distinguimos con un SELECT.
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM device_credentials WHERE device_uuid = $1)`,
			credentialID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("pg: check credential: %w", err)
		}
		if !exists {
			return nil, core.ErrNotFound
		}
		return nil, core.ErrConflict
	}

	const insert = `
		INSERT INTO devices (user_id, device_credential_id, name, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`
	d := core.Device{UserID: userID, CredentialID: credentialID, Name: name}
	if err := tx.QueryRow(ctx, insert, userID, credentialID, name).Scan(&d.ID, &d.CreatedAt); err != nil {
		return nil, fmt.Errorf("pg: insert device: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pg: commit claim: %w", err)
	}
	return &d, nil
}

// ------- Devices -------

func (s *Store) GetDeviceByCredential(ctx context.Context, credentialID string) (*core.Device, error) {
	const query = `
		SELECT id, user_id, device_credential_id, COALESCE(name, ''), created_at
		FROM devices WHERE device_credential_id = $1
	`
	var d core.Device
	err := s.pool.QueryRow(ctx, query, credentialID).Scan(
		&d.ID, &d.UserID, &d.CredentialID, &d.Name, &d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get device by credential: %w", err)
	}
	return &d, nil
}

func (s *Store) ListUserDevices(ctx context.Context, userID string) ([]core.Device, error) {
	const query = `
		SELECT id, user_id, device_credential_id, COALESCE(name, ''), created_at
		FROM devices WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("pg: list devices: %w", err)
	}
	defer rows.Close()

	var out []core.Device
	for rows.Next() {
		var d core.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.CredentialID, &d.Name, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDevice borra la fila del device y libera la credential para que
// pueda reclamarse de nuevo, todo en una transacción.
func (s *Store) DeleteDevice(ctx context.Context, deviceID, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var credentialID string
	err = tx.QueryRow(ctx,
		`DELETE FROM devices WHERE id = $1 AND user_id = $2 RETURNING device_credential_id`,
		deviceID, userID).Scan(&credentialID)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("pg: delete device: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE device_credentials SET claimed = FALSE, user_id = NULL WHERE device_uuid = $1`,
		credentialID); err != nil {
		return fmt.Errorf("pg: release credential: %w", err)
	}
	return tx.Commit(ctx)
}

// ------- Refresh tokens -------

func (s *Store) CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time, rotatedFrom *string) (string, error) {
	const query = `
		INSERT INTO refresh_tokens (user_id, token_hash, issued_at, expires_at, rotated_from)
		VALUES ($1, $2, NOW(), $3, $4)
		RETURNING id
	`
	var id string
	err := s.pool.QueryRow(ctx, query, userID, tokenHash, expiresAt, rotatedFrom).Scan(&id)
	if isUniqueViolation(err) {
		return "", core.ErrConflict
	}
	if err != nil {
		return "", fmt.Errorf("pg: insert refresh token: %w", err)
	}
	return id, nil
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*core.RefreshToken, error) {
	const query = `
		SELECT id, user_id, token_hash, issued_at, expires_at, revoked_at, rotated_from
		FROM refresh_tokens WHERE token_hash = $1
	`
	var t core.RefreshToken
	err := s.pool.QueryRow(ctx, query, tokenHash).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.RevokedAt, &t.RotatedFrom,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get refresh token: %w", err)
	}
	return &t, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id string) error {
	const query = `UPDATE refresh_tokens SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("pg: revoke refresh token: %w", err)
	}
	return nil
}

// RotateRefreshToken inserta el token nuevo y revoca el viejo en una sola
// transacción. El UPDATE condicional sobre revoked_at IS NULL hace que dos
// rotaciones concurrentes del mismo token no puedan ganar las dos.
func (s *Store) RotateRefreshToken(ctx context.Context, oldID, userID, newHash string, expiresAt time.Time) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("pg: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`,
		oldID)
	if err != nil {
		return "", fmt.Errorf("pg: revoke old token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", core.ErrInvalid
	}

	const insert = `
		INSERT INTO refresh_tokens (user_id, token_hash, issued_at, expires_at, rotated_from)
		VALUES ($1, $2, NOW(), $3, $4)
		RETURNING id
	`
	var newID string
	if err := tx.QueryRow(ctx, insert, userID, newHash, expiresAt, oldID).Scan(&newID); err != nil {
		if isUniqueViolation(err) {
			return "", core.ErrConflict
		}
		return "", fmt.Errorf("pg: insert rotated token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("pg: commit rotation: %w", err)
	}
	return newID, nil
}

// ------- Identities -------

func (s *Store) CreateIdentity(ctx context.Context, id *core.Identity) error {
	const query = `
		INSERT INTO identities (user_id, email, password_hash, email_verified, created_at)
		VALUES ($1, LOWER($2), $3, $4, NOW())
	`
	_, err := s.pool.Exec(ctx, query, id.UserID, id.Email, id.PasswordHash, id.EmailVerified)
	if isUniqueViolation(err) {
		return core.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("pg: insert identity: %w", err)
	}
	return nil
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (*core.Identity, error) {
	const query = `
		SELECT user_id, email, password_hash, email_verified, created_at
		FROM identities WHERE email = LOWER($1)
	`
	return s.scanIdentity(s.pool.QueryRow(ctx, query, email))
}

func (s *Store) GetIdentityByUserID(ctx context.Context, userID string) (*core.Identity, error) {
	const query = `
		SELECT user_id, email, password_hash, email_verified, created_at
		FROM identities WHERE user_id = $1
	`
	return s.scanIdentity(s.pool.QueryRow(ctx, query, userID))
}

func (s *Store) scanIdentity(row pgx.Row) (*core.Identity, error) {
	var id core.Identity
	err := row.Scan(&id.UserID, &id.Email, &id.PasswordHash, &id.EmailVerified, &id.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: scan identity: %w", err)
	}
	return &id, nil
}

func (s *Store) MarkEmailVerified(ctx context.Context, userID string) error {
	const query = `UPDATE identities SET email_verified = TRUE WHERE user_id = $1`
	tag, err := s.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("pg: mark verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ------- Email verification tokens -------

func (s *Store) CreateEmailToken(ctx context.Context, userID string, tokenHash []byte, expiresAt time.Time) error {
	const query = `
		INSERT INTO email_tokens (user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	if _, err := s.pool.Exec(ctx, query, userID, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("pg: insert email token: %w", err)
	}
	return nil
}

// ConsumeEmailToken borra el token en el mismo statement que lo lee:
// single-use sin ventana de carrera.
func (s *Store) ConsumeEmailToken(ctx context.Context, tokenHash []byte) (string, error) {
	const query = `
		DELETE FROM email_tokens
		WHERE token_hash = $1 AND expires_at > NOW()
		RETURNING user_id
	`
	var userID string
	err := s.pool.QueryRow(ctx, query, tokenHash).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", core.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("pg: consume email token: %w", err)
	}
	return userID, nil
}

// ------- Profiles -------

func (s *Store) GetProfile(ctx context.Context, userID string) (*core.Profile, error) {
	const query = `
		SELECT user_id, contact, COALESCE(full_name, ''), COALESCE(avatar_url, ''), updated_at
		FROM profiles WHERE user_id = $1
	`
	var p core.Profile
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Contact, &p.FullName, &p.AvatarURL, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get profile: %w", err)
	}
	return &p, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *core.Profile) error {
	const query = `
		INSERT INTO profiles (user_id, contact, full_name, avatar_url, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET contact = EXCLUDED.contact, full_name = EXCLUDED.full_name,
		    avatar_url = EXCLUDED.avatar_url, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, p.UserID, p.Contact, p.FullName, p.AvatarURL); err != nil {
		return fmt.Errorf("pg: upsert profile: %w", err)
	}
	return nil
}

func (s *Store) UpsertPendingProfile(ctx context.Context, p *core.PendingProfile) error {
	const query = `
		INSERT INTO pending_profiles (contact, full_name, avatar_url)
		VALUES (LOWER($1), $2, $3)
		ON CONFLICT (contact) DO UPDATE
		SET full_name = EXCLUDED.full_name, avatar_url = EXCLUDED.avatar_url
	`
	if _, err := s.pool.Exec(ctx, query, p.Contact, p.FullName, p.AvatarURL); err != nil {
		return fmt.Errorf("pg: upsert pending profile: %w", err)
	}
	return nil
}

func (s *Store) GetPendingProfile(ctx context.Context, contact string) (*core.PendingProfile, error) {
	const query = `
		SELECT contact, COALESCE(full_name, ''), COALESCE(avatar_url, '')
		FROM pending_profiles WHERE contact = LOWER($1)
	`
	var p core.PendingProfile
	err := s.pool.QueryRow(ctx, query, contact).Scan(&p.Contact, &p.FullName, &p.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get pending profile: %w", err)
	}
	return &p, nil
}

func (s *Store) DeletePendingProfile(ctx context.Context, contact string) error {
	const query = `DELETE FROM pending_profiles WHERE contact = LOWER($1)`
	tag, err := s.pool.Exec(ctx, query, contact)
	if err != nil {
		return fmt.Errorf("pg: delete pending profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ------- Events -------

func (s *Store) InsertEvent(ctx context.Context, e *core.Event) error {
	const query = `
		INSERT INTO events (device_id, user_id, event_type, occurred_at, details, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`
	details := e.Details
	if len(details) == 0 {
		details = []byte(`{}`)
	}
	err := s.pool.QueryRow(ctx, query, e.DeviceID, e.UserID, e.EventType, e.OccurredAt, details).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("pg: insert event: %w", err)
	}
	return nil
}

func (s *Store) ListDeviceEvents(ctx context.Context, deviceID string, limit int) ([]core.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	const query = `
		SELECT id, device_id, user_id, event_type, occurred_at, details, created_at
		FROM events WHERE device_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: list events: %w", err)
	}
	defer rows.Close()

	var out []core.Event
	for rows.Next() {
		var e core.Event
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.UserID, &e.EventType, &e.OccurredAt, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ------- Face encodings -------

func (s *Store) InsertFaceEncoding(ctx context.Context, f *core.FaceEncoding) error {
	const query = `
		INSERT INTO face_encodings (user_id, name, encoding, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`
	err := s.pool.QueryRow(ctx, query, f.UserID, f.Name, f.Encoding).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("pg: insert face encoding: %w", err)
	}
	return nil
}

func (s *Store) ListFaceEncodings(ctx context.Context, userID string) ([]core.FaceEncoding, error) {
	const query = `
		SELECT id, user_id, COALESCE(name, ''), encoding, created_at
		FROM face_encodings WHERE user_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("pg: list face encodings: %w", err)
	}
	defer rows.Close()

	var out []core.FaceEncoding
	for rows.Next() {
		var f core.FaceEncoding
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.Encoding, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan face encoding: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) DeleteFaceEncodings(ctx context.Context, userID string) error {
	const query = `DELETE FROM face_encodings WHERE user_id = $1`
	if _, err := s.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("pg: delete face encodings: %w", err)
	}
	return nil
}

var _ core.Repository = (*Store)(nil)
