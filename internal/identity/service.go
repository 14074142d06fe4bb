// Package identity implementa el registro y login local: signup con
// verificación de email, confirmación por token y actualización de perfil.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/homesentry/internal/observability/logger"
	"github.com/dropDatabas3/homesentry/internal/security/password"
	tokens "github.com/dropDatabas3/homesentry/internal/security/token"
	"github.com/dropDatabas3/homesentry/internal/store/core"
)

var (
	// ErrBadCredentials cubre email inexistente y password incorrecto.
	// Nunca distinguimos los dos casos hacia afuera.
	ErrBadCredentials = errors.New("identity: bad credentials")
	// ErrEmailTaken indica que ya existe una identidad con ese email.
	ErrEmailTaken = errors.New("identity: email already registered")
	// ErrNotVerified bloquea login hasta que el email esté confirmado.
	ErrNotVerified = errors.New("identity: email not verified")
	// ErrTokenInvalid cubre token de confirmación inexistente, usado o vencido.
	ErrTokenInvalid = errors.New("identity: confirmation token invalid")
	// ErrWeakPassword indica password por debajo del mínimo.
	ErrWeakPassword = errors.New("identity: password too short")
)

const (
	minPasswordLen = 8
	// verifyTokenBytes es el tamaño del token de confirmación antes de base64url.
	verifyTokenBytes = 32
)

// Mailer envía el mail de verificación. Si es nil, el service loguea el
// link en lugar de mandarlo (modo dev / tests).
type Mailer interface {
	SendVerification(to, link string) error
}

// Service maneja identidades locales (email + argon2id).
type Service struct {
	repo      core.Repository
	mailer    Mailer
	baseURL   string // base pública para armar el link de confirmación
	verifyTTL time.Duration
	params    password.Params
}

// New crea el service. baseURL sin slash final, ej. "https://api.example.com".
func New(repo core.Repository, mailer Mailer, baseURL string, verifyTTL time.Duration) *Service {
	if verifyTTL <= 0 {
		verifyTTL = 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		mailer:    mailer,
		baseURL:   strings.TrimRight(baseURL, "/"),
		verifyTTL: verifyTTL,
		params:    password.Default,
	}
}

// Signup crea la identidad (no verificada), guarda el perfil pendiente y
// dispara el mail de confirmación. El perfil real recién existe tras
// ConfirmEmail.
func (s *Service) Signup(ctx context.Context, email, plain, fullName, avatarURL string) error {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("identity: invalid email: %w", err)
	}
	if len(plain) < minPasswordLen {
		return ErrWeakPassword
	}

	hash, err := password.Hash(s.params, plain)
	if err != nil {
		return fmt.Errorf("identity: hash password: %w", err)
	}

	id := &core.Identity{
		UserID:       uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.repo.CreateIdentity(ctx, id); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return ErrEmailTaken
		}
		return fmt.Errorf("identity: create: %w", err)
	}

	if fullName != "" || avatarURL != "" {
		pp := &core.PendingProfile{Contact: email, FullName: fullName, AvatarURL: avatarURL}
		if err := s.repo.UpsertPendingProfile(ctx, pp); err != nil {
			return fmt.Errorf("identity: pending profile: %w", err)
		}
	}

	return s.sendConfirmation(ctx, id.UserID, email)
}

// ResendConfirmation genera un token nuevo para una identidad no verificada.
// Si el email no existe o ya está verificado no devuelve error (no oracle).
func (s *Service) ResendConfirmation(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	id, err := s.repo.GetIdentityByEmail(ctx, email)
	if err != nil || id.EmailVerified {
		return nil
	}
	return s.sendConfirmation(ctx, id.UserID, email)
}

func (s *Service) sendConfirmation(ctx context.Context, userID, email string) error {
	raw, err := tokens.GenerateOpaqueToken(verifyTokenBytes)
	if err != nil {
		return fmt.Errorf("identity: gen token: %w", err)
	}
	if err := s.repo.CreateEmailToken(ctx, userID, tokens.SHA256Raw(raw), time.Now().UTC().Add(s.verifyTTL)); err != nil {
		return fmt.Errorf("identity: store token: %w", err)
	}

	link := s.baseURL + "/auth/confirm_email?token=" + raw
	if s.mailer == nil {
		logger.L().Warn("mailer no configurado, link de confirmación solo en log",
			logger.Email(email), logger.String("link", link))
		return nil
	}
	if err := s.mailer.SendVerification(email, link); err != nil {
		// El signup ya quedó hecho: logueamos y dejamos que el usuario
		// pida reenvío en vez de fallar toda la operación.
		logger.L().Error("no se pudo enviar mail de verificación",
			logger.Email(email), logger.Err(err))
	}
	return nil
}

// ConfirmEmail consume el token (single-use), marca la identidad como
// verificada y materializa el perfil pendiente.
func (s *Service) ConfirmEmail(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return ErrTokenInvalid
	}
	userID, err := s.repo.ConsumeEmailToken(ctx, tokens.SHA256Raw(rawToken))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrInvalid) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("identity: consume token: %w", err)
	}
	if err := s.repo.MarkEmailVerified(ctx, userID); err != nil {
		return fmt.Errorf("identity: mark verified: %w", err)
	}

	id, err := s.repo.GetIdentityByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("identity: lookup after confirm: %w", err)
	}
	pp, err := s.repo.GetPendingProfile(ctx, id.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil // signup sin nombre/avatar, nada que mover
		}
		return fmt.Errorf("identity: pending profile: %w", err)
	}
	p := &core.Profile{
		UserID:    userID,
		Contact:   id.Email,
		FullName:  pp.FullName,
		AvatarURL: pp.AvatarURL,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		return fmt.Errorf("identity: upsert profile: %w", err)
	}
	if err := s.repo.DeletePendingProfile(ctx, id.Email); err != nil && !errors.Is(err, core.ErrNotFound) {
		logger.L().Warn("no se pudo borrar pending profile", logger.Email(id.Email), logger.Err(err))
	}
	return nil
}

// Login verifica credenciales y devuelve userID + perfil (puede ser nil).
func (s *Service) Login(ctx context.Context, email, plain string) (string, *core.Profile, error) {
	email = normalizeEmail(email)
	id, err := s.repo.GetIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Igual quemamos un verify para no filtrar existencia por timing.
			password.Verify(plain, dummyHash)
			return "", nil, ErrBadCredentials
		}
		return "", nil, fmt.Errorf("identity: lookup: %w", err)
	}
	if !password.Verify(plain, id.PasswordHash) {
		return "", nil, ErrBadCredentials
	}
	if !id.EmailVerified {
		return "", nil, ErrNotVerified
	}
	p, err := s.repo.GetProfile(ctx, id.UserID)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			return "", nil, fmt.Errorf("identity: profile: %w", err)
		}
		p = nil
	}
	return id.UserID, p, nil
}

// UpdateProfile actualiza nombre y/o avatar del usuario autenticado.
// Campos vacíos conservan el valor actual.
func (s *Service) UpdateProfile(ctx context.Context, userID, fullName, avatarURL string) (*core.Profile, error) {
	cur, err := s.repo.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("identity: profile: %w", err)
	}
	if cur == nil {
		id, err := s.repo.GetIdentityByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("identity: lookup: %w", err)
		}
		cur = &core.Profile{UserID: userID, Contact: id.Email}
	}
	if fullName != "" {
		cur.FullName = fullName
	}
	if avatarURL != "" {
		cur.AvatarURL = avatarURL
	}
	cur.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpsertProfile(ctx, cur); err != nil {
		return nil, fmt.Errorf("identity: upsert profile: %w", err)
	}
	return cur, nil
}

// Profile devuelve el perfil del usuario, o uno mínimo si todavía no cargó datos.
func (s *Service) Profile(ctx context.Context, userID string) (*core.Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("identity: profile: %w", err)
	}
	id, err := s.repo.GetIdentityByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("identity: lookup: %w", err)
	}
	return &core.Profile{UserID: userID, Contact: id.Email}, nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// dummyHash es un hash argon2id válido de un password descartable; solo se
// usa para igualar el costo del camino "email inexistente".
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$JHwF1Cf2hknPAZtMn2sNPN8M6BLawrPfVylUuH8tkZ4"
