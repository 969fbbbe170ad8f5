package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"todo-api/backend/internal/models"
	"todo-api/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

// Keys the gate stores on the gin context.
const (
	ContextUserID    = "user_id"
	ContextSessionID = "session_id"
)

const (
	msgNotProvided     = "Authentication credentials were not provided."
	msgInvalidLogin    = "Invalid username/password."
	msgInactiveUser    = "User inactive or deleted."
	msgInvalidBasic    = "Invalid basic header. Credentials not correctly base64 encoded."
	basicAuthChallenge = `Basic realm="api"`
)

type AuthConfig struct {
	Auth       services.AuthService
	CookieName string
	Logger     *slog.Logger
}

// AuthRequired rejects the request with 401 unless it carries a valid
// session cookie or HTTP Basic credentials. Nothing past this handler runs
// for an anonymous caller.
func AuthRequired(cfg AuthConfig) gin.HandlerFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = "sessionid"
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if token, err := c.Cookie(cookieName); err == nil && token != "" {
			user, session, err := cfg.Auth.ResolveSession(ctx, token)
			switch {
			case err == nil:
				authenticate(c, user)
				c.Set(ContextSessionID, session.ID)
				c.Next()
				return
			case errors.Is(err, services.ErrInvalidSession), errors.Is(err, services.ErrInactiveUser):
				// A stale cookie is the same as no cookie; Basic may still apply.
			default:
				logger.ErrorContext(ctx, "session lookup failed", slog.String("error", err.Error()))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
				return
			}
		}

		header := c.GetHeader("Authorization")
		scheme, _, _ := strings.Cut(header, " ")
		if !strings.EqualFold(scheme, "basic") {
			unauthorized(c, msgNotProvided)
			return
		}

		username, password, ok := c.Request.BasicAuth()
		if !ok {
			unauthorized(c, msgInvalidBasic)
			return
		}

		user, err := cfg.Auth.Authenticate(ctx, username, password)
		switch {
		case err == nil:
			authenticate(c, user)
			c.Next()
		case errors.Is(err, services.ErrInvalidCredentials):
			unauthorized(c, msgInvalidLogin)
		case errors.Is(err, services.ErrInactiveUser):
			unauthorized(c, msgInactiveUser)
		default:
			logger.ErrorContext(ctx, "basic auth lookup failed", slog.String("error", err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
	}
}

func authenticate(c *gin.Context, user *models.User) {
	c.Set(ContextUserID, user.ID)
}

func unauthorized(c *gin.Context, detail string) {
	c.Header("WWW-Authenticate", basicAuthChallenge)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detail})
}

// CurrentUserID returns the id stored by AuthRequired.
func CurrentUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func CurrentSessionID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextSessionID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
