package services_test

import (
	"context"
	"testing"
	"time"

	"todo-api/backend/internal/config"
	"todo-api/backend/internal/database/databasetest"
	"todo-api/backend/internal/models"
	"todo-api/backend/internal/repositories"
	"todo-api/backend/internal/services"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type authFixture struct {
	db       *gorm.DB
	users    *repositories.GormUserRepository
	sessions *repositories.GormSessionRepository
	auth     *services.AuthServiceImpl
	cfg      config.AuthConfig
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	pool := databasetest.NewPool(t)
	cfg := config.AuthConfig{
		SessionSecret: "test-secret",
		SessionTTL:    time.Hour,
		BCryptCost:    bcrypt.MinCost,
	}
	users := repositories.NewGormUserRepository(pool.DB)
	sessions := repositories.NewGormSessionRepository(pool.DB)
	return &authFixture{
		db:       pool.DB,
		users:    users,
		sessions: sessions,
		auth:     services.NewAuthService(users, sessions, cfg),
		cfg:      cfg,
	}
}

func (f *authFixture) createUser(t *testing.T, username, password string) *models.User {
	t.Helper()
	hash, err := services.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{Username: username, Password: hash, IsActive: true}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func TestAuthService_Authenticate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.createUser(t, "alice", "correct horse")

	user, err := f.auth.Authenticate(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = f.auth.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = f.auth.Authenticate(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestAuthService_AuthenticateInactive(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "dormant", "password1")
	require.NoError(t, f.db.Model(user).Update("is_active", false).Error)

	_, err := f.auth.Authenticate(context.Background(), "dormant", "password1")
	assert.ErrorIs(t, err, services.ErrInactiveUser)
}

func TestAuthService_SessionRoundTrip(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice", "password1")

	token, session, err := f.auth.CreateSession(ctx, user, services.SessionMeta{UserAgent: "test", IPAddress: "127.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, session.UserID)
	assert.NotNil(t, user.LastLoginAt)

	resolved, resolvedSession, err := f.auth.ResolveSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
	assert.Equal(t, session.ID, resolvedSession.ID)

	require.NoError(t, f.auth.RevokeSession(ctx, session.ID))
	_, _, err = f.auth.ResolveSession(ctx, token)
	assert.ErrorIs(t, err, services.ErrInvalidSession)
}

func TestAuthService_ResolveSessionRejectsTampering(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice", "password1")

	token, session, err := f.auth.CreateSession(ctx, user, services.SessionMeta{})
	require.NoError(t, err)

	other := services.NewAuthService(f.users, f.sessions, config.AuthConfig{SessionSecret: "other-secret", SessionTTL: time.Hour})
	_, _, err = other.ResolveSession(ctx, token)
	assert.ErrorIs(t, err, services.ErrInvalidSession, "wrong signing key")

	_, _, err = f.auth.ResolveSession(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, services.ErrInvalidSession, "garbage")

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, services.SessionClaims{
		SessionID: session.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.Must(uuid.NewV4()).String(),
			Issuer:    "todo-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := forged.SignedString([]byte(f.cfg.SessionSecret))
	require.NoError(t, err)
	_, _, err = f.auth.ResolveSession(ctx, signed)
	assert.ErrorIs(t, err, services.ErrInvalidSession, "subject mismatch")

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, services.SessionClaims{
		SessionID:        session.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID.String(), Issuer: "todo-api"},
	})
	signed, err = noExpiry.SignedString([]byte(f.cfg.SessionSecret))
	require.NoError(t, err)
	_, _, err = f.auth.ResolveSession(ctx, signed)
	assert.ErrorIs(t, err, services.ErrInvalidSession, "missing exp")
}

func TestAuthService_ExpiredSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice", "password1")

	short := services.NewAuthService(f.users, f.sessions, config.AuthConfig{SessionSecret: "test-secret", SessionTTL: -time.Minute})
	token, _, err := short.CreateSession(ctx, user, services.SessionMeta{})
	require.NoError(t, err)

	_, _, err = f.auth.ResolveSession(ctx, token)
	assert.ErrorIs(t, err, services.ErrInvalidSession)

	purged, err := f.auth.PurgeExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestAuthService_ResolveSessionInactiveUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice", "password1")

	token, _, err := f.auth.CreateSession(ctx, user, services.SessionMeta{})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", user.ID).Update("is_active", false).Error)

	_, _, err = f.auth.ResolveSession(ctx, token)
	assert.ErrorIs(t, err, services.ErrInactiveUser)
}

func TestHashPassword(t *testing.T) {
	hash, err := services.HashPassword("s3cret-pass", 0)
	require.NoError(t, err)
	assert.True(t, services.VerifyPassword(hash, "s3cret-pass"))
	assert.False(t, services.VerifyPassword(hash, "other"))

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}
