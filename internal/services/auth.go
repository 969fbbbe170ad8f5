package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"todo-api/backend/internal/config"
	"todo-api/backend/internal/models"
	"todo-api/backend/internal/repositories"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const sessionIssuer = "todo-api"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInactiveUser       = errors.New("user inactive or deleted")
	ErrInvalidSession     = errors.New("invalid session")
)

// SessionClaims is the payload of the session cookie. It only points at a
// server-side session row; revoking the row invalidates the cookie.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type SessionMeta struct {
	UserAgent string
	IPAddress string
}

type AuthService interface {
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	CreateSession(ctx context.Context, user *models.User, meta SessionMeta) (string, *models.Session, error)
	ResolveSession(ctx context.Context, token string) (*models.User, *models.Session, error)
	RevokeSession(ctx context.Context, sessionID uuid.UUID) error
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

type AuthServiceImpl struct {
	users    repositories.UserRepository
	sessions repositories.SessionRepository
	secret   []byte
	ttl      time.Duration
	now      func() time.Time

	// dummyHash is compared against when the username is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

func NewAuthService(users repositories.UserRepository, sessions repositories.SessionRepository, cfg config.AuthConfig) *AuthServiceImpl {
	cost := cfg.BCryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)

	return &AuthServiceImpl{
		users:     users,
		sessions:  sessions,
		secret:    []byte(cfg.SessionSecret),
		ttl:       cfg.SessionTTL,
		now:       time.Now,
		dummyHash: dummy,
	}
}

func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

// Authenticate checks a username and password pair. Unknown users and
// wrong passwords both yield ErrInvalidCredentials.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !VerifyPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// CreateSession persists a session row for user and returns the signed
// cookie value that refers to it.
func (s *AuthServiceImpl) CreateSession(ctx context.Context, user *models.User, meta SessionMeta) (string, *models.Session, error) {
	now := s.now().UTC()
	session := &models.Session{
		UserID:    user.ID,
		ExpiresAt: now.Add(s.ttl),
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", nil, err
	}

	claims := SessionClaims{
		SessionID: session.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session: %w", err)
	}

	user.LastLoginAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		return "", nil, err
	}

	return token, session, nil
}

// ResolveSession verifies a cookie value and loads the session and its
// user. Any failure is reported as ErrInvalidSession except storage errors.
func (s *AuthServiceImpl) ResolveSession(ctx context.Context, token string) (*models.User, *models.Session, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, nil, ErrInvalidSession
	}

	sessionID, err := uuid.FromString(claims.SessionID)
	if err != nil {
		return nil, nil, ErrInvalidSession
	}

	session, err := s.sessions.FindActive(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return nil, nil, ErrInvalidSession
		}
		return nil, nil, err
	}
	if session.UserID.String() != claims.Subject {
		return nil, nil, ErrInvalidSession
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, nil, ErrInvalidSession
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrInactiveUser
	}

	return user, session, nil
}

func (s *AuthServiceImpl) RevokeSession(ctx context.Context, sessionID uuid.UUID) error {
	return s.sessions.Delete(ctx, sessionID)
}

func (s *AuthServiceImpl) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now())
}
