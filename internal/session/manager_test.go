package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/homesentry/internal/jwt"
	"github.com/dropDatabas3/homesentry/internal/store/core"
	"github.com/dropDatabas3/homesentry/internal/store/memory"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	issuer, err := jwt.NewIssuer("https://homesentry.test", "0123456789abcdef0123456789abcdef", 15*time.Minute)
	require.NoError(t, err)
	return NewManager(memory.New(), issuer, 30*24*time.Hour)
}

func TestLogin_MintsFreshPair(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	p1, err := m.Login(ctx, "u1")
	require.NoError(t, err)
	p2, err := m.Login(ctx, "u1")
	require.NoError(t, err)

	assert.NotEmpty(t, p1.AccessToken)
	assert.NotEmpty(t, p1.RefreshToken)
	assert.NotEqual(t, p1.RefreshToken, p2.RefreshToken, "login nunca reusa un refresh")
}

func TestRefresh_RotatesAndBlocksReuse(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	p1, err := m.Login(ctx, "u1")
	require.NoError(t, err)

	p2, err := m.Refresh(ctx, p1.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, p1.RefreshToken, p2.RefreshToken)
	assert.Equal(t, "u1", p2.UserID)

	// re-presentar el token rotado: Invalid
	_, err = m.Refresh(ctx, p1.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalid)

	// el nuevo funciona exactamente una vez antes de su propia rotación
	p3, err := m.Refresh(ctx, p2.RefreshToken)
	require.NoError(t, err)
	_, err = m.Refresh(ctx, p2.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalid)
	_ = p3
}

func TestRefresh_AccessTokenSurvivesRotation(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	p1, err := m.Login(ctx, "u1")
	require.NoError(t, err)
	_, err = m.Refresh(ctx, p1.RefreshToken)
	require.NoError(t, err)

	// el access A1 es stateless: la rotación del refresh no lo invalida
	claims, err := jwt.ParseHS256(p1.AccessToken, []byte("0123456789abcdef0123456789abcdef"), "https://homesentry.test")
	require.NoError(t, err)
	assert.Equal(t, "u1", jwt.ClaimString(claims, "sub"))
}

func TestRefresh_UnknownAndEmpty(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Refresh(ctx, "never-issued")
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = m.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRefresh_Expired(t *testing.T) {
	t.Parallel()
	issuer, err := jwt.NewIssuer("x", "0123456789abcdef0123456789abcdef", time.Minute)
	require.NoError(t, err)
	// TTL de refresh negativo: todo token nace expirado
	m := NewManager(memory.New(), issuer, time.Nanosecond)
	ctx := context.Background()

	p, err := m.Login(ctx, "u1")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	_, err = m.Refresh(ctx, p.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalid)
}

// rotateRaceRepo simula el store de Postgres perdiendo la carrera de
// rotación: el UPDATE condicional no afecta filas y devuelve ErrInvalid.
type rotateRaceRepo struct {
	core.Repository
}

func (r *rotateRaceRepo) RotateRefreshToken(ctx context.Context, oldID, userID, newHash string, expiresAt time.Time) (string, error) {
	return "", core.ErrInvalid
}

func TestRefresh_LostRotationRaceIsInvalid(t *testing.T) {
	t.Parallel()
	issuer, err := jwt.NewIssuer("https://homesentry.test", "0123456789abcdef0123456789abcdef", 15*time.Minute)
	require.NoError(t, err)
	m := NewManager(&rotateRaceRepo{Repository: memory.New()}, issuer, 30*24*time.Hour)
	ctx := context.Background()

	p, err := m.Login(ctx, "u1")
	require.NoError(t, err)

	// perder la carrera no es un error interno: mismo ErrInvalid que
	// cualquier otro token inutilizable
	_, err = m.Refresh(ctx, p.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRevoke_IdempotentAndEffective(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	p, err := m.Login(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, p.RefreshToken))
	require.NoError(t, m.Revoke(ctx, p.RefreshToken)) // idempotente
	require.NoError(t, m.Revoke(ctx, "unknown"))      // idempotente
	require.NoError(t, m.Revoke(ctx, ""))

	_, err = m.Refresh(ctx, p.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalid)
}
