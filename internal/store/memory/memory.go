// Package memory implementa core.Repository en memoria. Se usa en tests y
// en modo dev sin Postgres. La atomicidad de claim y rotación se garantiza
// con el mutex del store (un solo proceso, a diferencia del adapter pg que
// usa conditional updates y transacciones).
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/homesentry/internal/store/core"
)

type Store struct {
	mu sync.Mutex

	creds     map[string]*core.DeviceCredential // por credential ID
	devices   map[string]*core.Device           // por device ID
	refresh   map[string]*core.RefreshToken     // por token ID
	ids       map[string]*core.Identity         // por email (lowercase)
	emailToks map[string]emailToken             // por hash (string(hash))
	profiles  map[string]*core.Profile          // por user ID
	pending   map[string]*core.PendingProfile   // por contact (lowercase)
	events    []core.Event
	faces     map[string][]core.FaceEncoding // por user ID
}

type emailToken struct {
	userID    string
	expiresAt time.Time
	used      bool
}

func New() *Store {
	return &Store{
		creds:     map[string]*core.DeviceCredential{},
		devices:   map[string]*core.Device{},
		refresh:   map[string]*core.RefreshToken{},
		ids:       map[string]*core.Identity{},
		emailToks: map[string]emailToken{},
		profiles:  map[string]*core.Profile{},
		pending:   map[string]*core.PendingProfile{},
		faces:     map[string][]core.FaceEncoding{},
	}
}

var _ core.Repository = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error { return nil }

// ------- Device credentials -------

func (s *Store) CreateDeviceCredential(ctx context.Context, c *core.DeviceCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[c.ID]; ok {
		return core.ErrConflict
	}
	cp := *c
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.creds[c.ID] = &cp
	return nil
}

func (s *Store) GetDeviceCredential(ctx context.Context, id string) (*core.DeviceCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetDeviceCredentialByAPIKey(ctx context.Context, apiKey string) (*core.DeviceCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.creds {
		if c.APIKey == apiKey {
			cp := *c
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) ClaimDevice(ctx context.Context, credentialID, userID, name string) (*core.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.creds[credentialID]
	if !ok {
		return nil, core.ErrNotFound
	}
	// CAS: claimed=false -> true. Bajo el mutex es atómico por definición.
	if c.Claimed {
		return nil, core.ErrConflict
	}
	c.Claimed = true
	uid := userID
	c.UserID = &uid

	d := &core.Device{
		ID:           uuid.NewString(),
		UserID:       userID,
		CredentialID: credentialID,
		Name:         name,
		CreatedAt:    time.Now().UTC(),
	}
	s.devices[d.ID] = d
	cp := *d
	return &cp, nil
}

// ------- Devices -------

func (s *Store) GetDeviceByCredential(ctx context.Context, credentialID string) (*core.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.CredentialID == credentialID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) ListUserDevices(ctx context.Context, userID string) ([]core.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Device
	for _, d := range s.devices {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteDevice(ctx context.Context, deviceID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok || d.UserID != userID {
		return core.ErrNotFound
	}
	// liberar la credential para que pueda reclamarse de nuevo
	if c, ok := s.creds[d.CredentialID]; ok {
		c.Claimed = false
		c.UserID = nil
	}
	delete(s.devices, deviceID)
	return nil
}

// ------- Refresh tokens -------

func (s *Store) CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time, rotatedFrom *string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRefreshLocked(userID, tokenHash, expiresAt, rotatedFrom)
}

func (s *Store) createRefreshLocked(userID, tokenHash string, expiresAt time.Time, rotatedFrom *string) (string, error) {
	for _, rt := range s.refresh {
		if rt.TokenHash == tokenHash {
			return "", core.ErrConflict
		}
	}
	id := uuid.NewString()
	s.refresh[id] = &core.RefreshToken{
		ID:          id,
		UserID:      userID,
		TokenHash:   tokenHash,
		IssuedAt:    time.Now().UTC(),
		ExpiresAt:   expiresAt,
		RotatedFrom: rotatedFrom,
	}
	return id, nil
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*core.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rt := range s.refresh {
		if rt.TokenHash == tokenHash {
			cp := *rt
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.refresh[id]
	if !ok {
		return core.ErrNotFound
	}
	if rt.RevokedAt == nil {
		now := time.Now().UTC()
		rt.RevokedAt = &now
	}
	return nil
}

func (s *Store) RotateRefreshToken(ctx context.Context, oldID, userID, newHash string, expiresAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.refresh[oldID]
	if !ok || old.RevokedAt != nil {
		return "", core.ErrNotFound
	}
	id, err := s.createRefreshLocked(userID, newHash, expiresAt, &oldID)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	old.RevokedAt = &now
	return id, nil
}

// ------- Identities -------

func (s *Store) CreateIdentity(ctx context.Context, id *core.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(id.Email)
	if _, ok := s.ids[key]; ok {
		return core.ErrConflict
	}
	cp := *id
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.ids[key] = &cp
	return nil
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (*core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[strings.ToLower(email)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *id
	return &cp, nil
}

func (s *Store) GetIdentityByUserID(ctx context.Context, userID string) (*core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.ids {
		if id.UserID == userID {
			cp := *id
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) MarkEmailVerified(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.ids {
		if id.UserID == userID {
			id.EmailVerified = true
			return nil
		}
	}
	return core.ErrNotFound
}

// ------- Email tokens -------

func (s *Store) CreateEmailToken(ctx context.Context, userID string, tokenHash []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emailToks[string(tokenHash)] = emailToken{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *Store) ConsumeEmailToken(ctx context.Context, tokenHash []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tk, ok := s.emailToks[string(tokenHash)]
	if !ok || tk.used || time.Now().After(tk.expiresAt) {
		return "", core.ErrNotFound
	}
	tk.used = true
	s.emailToks[string(tokenHash)] = tk
	return tk.userID, nil
}

// ------- Profiles -------

func (s *Store) GetProfile(ctx context.Context, userID string) (*core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.UpdatedAt = time.Now().UTC()
	s.profiles[p.UserID] = &cp
	return nil
}

func (s *Store) UpsertPendingProfile(ctx context.Context, p *core.PendingProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.pending[strings.ToLower(p.Contact)] = &cp
	return nil
}

func (s *Store) GetPendingProfile(ctx context.Context, contact string) (*core.PendingProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[strings.ToLower(contact)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) DeletePendingProfile(ctx context.Context, contact string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, strings.ToLower(contact))
	return nil
}

// ------- Events -------

func (s *Store) InsertEvent(ctx context.Context, e *core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.Details == nil {
		cp.Details = json.RawMessage(`{}`)
	}
	s.events = append(s.events, cp)
	*e = cp
	return nil
}

func (s *Store) ListDeviceEvents(ctx context.Context, deviceID string, limit int) ([]core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].DeviceID == deviceID {
			out = append(out, s.events[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// ------- Face encodings -------

func (s *Store) InsertFaceEncoding(ctx context.Context, f *core.FaceEncoding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.faces[f.UserID] = append(s.faces[f.UserID], cp)
	*f = cp
	return nil
}

func (s *Store) ListFaceEncodings(ctx context.Context, userID string) ([]core.FaceEncoding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.FaceEncoding, len(s.faces[userID]))
	copy(out, s.faces[userID])
	return out, nil
}

func (s *Store) DeleteFaceEncodings(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.faces, userID)
	return nil
}
