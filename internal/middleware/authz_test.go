package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"todo-api/backend/internal/middleware"
	"todo-api/backend/internal/models"
	"todo-api/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	user         *models.User
	session      *models.Session
	password     string
	validToken   string
	authErr      error
	resolveErr   error
	authCalls    int
	resolveCalls int
}

func (f *fakeAuth) Authenticate(_ context.Context, username, password string) (*models.User, error) {
	f.authCalls++
	if f.authErr != nil {
		return nil, f.authErr
	}
	if username != f.user.Username || password != f.password {
		return nil, services.ErrInvalidCredentials
	}
	return f.user, nil
}

func (f *fakeAuth) CreateSession(context.Context, *models.User, services.SessionMeta) (string, *models.Session, error) {
	return f.validToken, f.session, nil
}

func (f *fakeAuth) ResolveSession(_ context.Context, token string) (*models.User, *models.Session, error) {
	f.resolveCalls++
	if f.resolveErr != nil {
		return nil, nil, f.resolveErr
	}
	if token != f.validToken {
		return nil, nil, services.ErrInvalidSession
	}
	return f.user, f.session, nil
}

func (f *fakeAuth) RevokeSession(context.Context, uuid.UUID) error      { return nil }
func (f *fakeAuth) PurgeExpiredSessions(context.Context) (int64, error) { return 0, nil }

func newFakeAuth() *fakeAuth {
	user := &models.User{ID: uuid.Must(uuid.NewV4()), Username: "alice", IsActive: true}
	return &fakeAuth{
		user:       user,
		session:    &models.Session{ID: uuid.Must(uuid.NewV4()), UserID: user.ID},
		password:   "password1",
		validToken: "good-token",
	}
}

func newGatedRouter(auth services.AuthService, reached *bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.AuthRequired(middleware.AuthConfig{Auth: auth, CookieName: "sessionid"}))
	router.GET("/protected", func(c *gin.Context) {
		*reached = true
		id, _ := middleware.CurrentUserID(c)
		_, hasSession := middleware.CurrentSessionID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id.String(), "session": hasSession})
	})
	return router
}

func TestAuthRequired_NoCredentials(t *testing.T) {
	reached := false
	router := newGatedRouter(newFakeAuth(), &reached)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
	assert.JSONEq(t, `{"detail":"Authentication credentials were not provided."}`, w.Body.String())
	assert.Equal(t, `Basic realm="api"`, w.Header().Get("WWW-Authenticate"))
	assert.False(t, reached)
}

func TestAuthRequired_BearerIsNotAccepted(t *testing.T) {
	reached := false
	router := newGatedRouter(newFakeAuth(), &reached)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer something")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, reached)
}

func TestAuthRequired_Basic(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		pass     string
		authErr  error
		status   int
		detail   string
		expected bool
	}{
		{name: "valid", user: "alice", pass: "password1", status: http.StatusOK, expected: true},
		{name: "wrong password", user: "alice", pass: "nope", status: http.StatusUnauthorized, detail: "Invalid username/password."},
		{name: "inactive", user: "alice", pass: "password1", authErr: services.ErrInactiveUser, status: http.StatusUnauthorized, detail: "User inactive or deleted."},
		{name: "store failure", user: "alice", pass: "password1", authErr: errors.New("db down"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := newFakeAuth()
			auth.authErr = tt.authErr
			reached := false
			router := newGatedRouter(auth, &reached)

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.SetBasicAuth(tt.user, tt.pass)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			assert.Equal(t, tt.expected, reached)
			if tt.detail != "" {
				assert.JSONEq(t, `{"detail":"`+tt.detail+`"}`, w.Body.String())
			}
			if tt.expected {
				assert.Contains(t, w.Body.String(), auth.user.ID.String())
				assert.Contains(t, w.Body.String(), `"session":false`)
			}
		})
	}
}

func TestAuthRequired_MalformedBasicHeader(t *testing.T) {
	reached := false
	router := newGatedRouter(newFakeAuth(), &reached)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic !!!not-base64")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid basic header")
	assert.False(t, reached)
}

func TestAuthRequired_SessionCookie(t *testing.T) {
	auth := newFakeAuth()
	reached := false
	router := newGatedRouter(auth, &reached)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "good-token"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, reached)
	assert.Contains(t, w.Body.String(), `"session":true`)
	assert.Equal(t, 0, auth.authCalls)
}

func TestAuthRequired_StaleCookieFallsBackToBasic(t *testing.T) {
	auth := newFakeAuth()
	reached := false
	router := newGatedRouter(auth, &reached)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "expired-token"})
	req.SetBasicAuth("alice", "password1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, auth.resolveCalls)
	assert.Equal(t, 1, auth.authCalls)
}

func TestAuthRequired_StaleCookieAlone(t *testing.T) {
	reached := false
	router := newGatedRouter(newFakeAuth(), &reached)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "expired-token"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, reached)
}

func TestAuthRequired_SessionStoreFailure(t *testing.T) {
	auth := newFakeAuth()
	auth.resolveErr = errors.New("db down")
	reached := false
	router := newGatedRouter(auth, &reached)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "good-token"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, reached)
}
