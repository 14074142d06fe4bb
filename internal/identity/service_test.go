package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/homesentry/internal/store/memory"
)

type captureMailer struct {
	to, link string
	sent     int
}

func (m *captureMailer) SendVerification(to, link string) error {
	m.to, m.link, m.sent = to, link, m.sent+1
	return nil
}

func (m *captureMailer) token(t *testing.T) string {
	t.Helper()
	i := strings.Index(m.link, "token=")
	require.GreaterOrEqual(t, i, 0, "link sin token: %q", m.link)
	return m.link[i+len("token="):]
}

func newService(t *testing.T) (*Service, *memory.Store, *captureMailer) {
	t.Helper()
	st := memory.New()
	m := &captureMailer{}
	return New(st, m, "https://api.homesentry.test/", time.Hour), st, m
}

func TestSignupConfirmLogin(t *testing.T) {
	ctx := context.Background()
	svc, _, m := newService(t)

	require.NoError(t, svc.Signup(ctx, "Ana@Example.com", "correcthorse", "Ana Pérez", "https://img/ana.png"))
	assert.Equal(t, 1, m.sent)
	assert.Equal(t, "ana@example.com", m.to)
	assert.True(t, strings.HasPrefix(m.link, "https://api.homesentry.test/auth/confirm_email?token="))

	// Login antes de confirmar: bloqueado.
	_, _, err := svc.Login(ctx, "ana@example.com", "correcthorse")
	require.ErrorIs(t, err, ErrNotVerified)

	require.NoError(t, svc.ConfirmEmail(ctx, m.token(t)))

	userID, p, err := svc.Login(ctx, "ANA@example.com", "correcthorse")
	require.NoError(t, err)
	require.NotEmpty(t, userID)
	require.NotNil(t, p)
	assert.Equal(t, "Ana Pérez", p.FullName)
	assert.Equal(t, "https://img/ana.png", p.AvatarURL)
}

func TestConfirmTokenSingleUse(t *testing.T) {
	ctx := context.Background()
	svc, _, m := newService(t)

	require.NoError(t, svc.Signup(ctx, "b@example.com", "correcthorse", "", ""))
	tok := m.token(t)
	require.NoError(t, svc.ConfirmEmail(ctx, tok))
	require.ErrorIs(t, svc.ConfirmEmail(ctx, tok), ErrTokenInvalid)
	require.ErrorIs(t, svc.ConfirmEmail(ctx, "no-such-token"), ErrTokenInvalid)
	require.ErrorIs(t, svc.ConfirmEmail(ctx, ""), ErrTokenInvalid)
}

func TestLoginBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc, _, m := newService(t)

	require.NoError(t, svc.Signup(ctx, "c@example.com", "correcthorse", "", ""))
	require.NoError(t, svc.ConfirmEmail(ctx, m.token(t)))

	_, _, err := svc.Login(ctx, "c@example.com", "wrongpassword")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, _, err = svc.Login(ctx, "nobody@example.com", "correcthorse")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestSignupValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	assert.Error(t, svc.Signup(ctx, "not-an-email", "correcthorse", "", ""))
	assert.ErrorIs(t, svc.Signup(ctx, "d@example.com", "short", "", ""), ErrWeakPassword)

	require.NoError(t, svc.Signup(ctx, "d@example.com", "correcthorse", "", ""))
	assert.ErrorIs(t, svc.Signup(ctx, "D@EXAMPLE.COM", "correcthorse", "", ""), ErrEmailTaken)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc, _, m := newService(t)

	require.NoError(t, svc.Signup(ctx, "e@example.com", "correcthorse", "Eva", ""))
	require.NoError(t, svc.ConfirmEmail(ctx, m.token(t)))
	userID, _, err := svc.Login(ctx, "e@example.com", "correcthorse")
	require.NoError(t, err)

	p, err := svc.UpdateProfile(ctx, userID, "", "https://img/eva.png")
	require.NoError(t, err)
	assert.Equal(t, "Eva", p.FullName, "campo vacío conserva el valor actual")
	assert.Equal(t, "https://img/eva.png", p.AvatarURL)

	got, err := svc.Profile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "https://img/eva.png", got.AvatarURL)
}

func TestResendConfirmationNoOracle(t *testing.T) {
	ctx := context.Background()
	svc, _, m := newService(t)

	require.NoError(t, svc.Signup(ctx, "f@example.com", "correcthorse", "", ""))
	require.NoError(t, svc.ResendConfirmation(ctx, "f@example.com"))
	assert.Equal(t, 2, m.sent)

	// Email inexistente o verificado: silencio, ni error ni mail.
	require.NoError(t, svc.ConfirmEmail(ctx, m.token(t)))
	require.NoError(t, svc.ResendConfirmation(ctx, "f@example.com"))
	require.NoError(t, svc.ResendConfirmation(ctx, "ghost@example.com"))
	assert.Equal(t, 2, m.sent)
}
