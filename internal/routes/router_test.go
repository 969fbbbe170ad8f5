package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"todo-api/backend/internal/config"
	"todo-api/backend/internal/database/databasetest"
	"todo-api/backend/internal/middleware"
	"todo-api/backend/internal/models"
	"todo-api/backend/internal/monitoring"
	"todo-api/backend/internal/repositories"
	"todo-api/backend/internal/routes"
	"todo-api/backend/internal/serializers"
	"todo-api/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// spyTodoRepository counts every call that reaches storage.
type spyTodoRepository struct {
	inner repositories.TodoRepository
	calls atomic.Int32
}

func (s *spyTodoRepository) FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*models.Todo, error) {
	s.calls.Add(1)
	return s.inner.FindByIDAndOwner(ctx, id, ownerID)
}

func (s *spyTodoRepository) FindAllByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Todo, error) {
	s.calls.Add(1)
	return s.inner.FindAllByOwner(ctx, ownerID)
}

func (s *spyTodoRepository) Save(ctx context.Context, todo *models.Todo) error {
	s.calls.Add(1)
	return s.inner.Save(ctx, todo)
}

func (s *spyTodoRepository) Delete(ctx context.Context, todo *models.Todo) error {
	s.calls.Add(1)
	return s.inner.Delete(ctx, todo)
}

type testApp struct {
	router *gin.Engine
	repo   *spyTodoRepository
	users  *repositories.GormUserRepository
}

func newTestConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			SessionSecret:     "test-secret",
			SessionTTL:        time.Hour,
			SessionCookieName: "sessionid",
			BCryptCost:        bcrypt.MinCost,
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			MaxAge:         time.Hour,
		},
	}
}

func newTestApp(t *testing.T, limiter *middleware.RateLimiter) *testApp {
	t.Helper()
	pool := databasetest.NewPool(t)
	cfg := newTestConfig()

	repo := &spyTodoRepository{inner: repositories.NewGormTodoRepository(pool.DB)}
	users := repositories.NewGormUserRepository(pool.DB)
	sessions := repositories.NewGormSessionRepository(pool.DB)
	serializer := serializers.NewTodoSerializer(repo)

	router := routes.SetupRouter(routes.Dependencies{
		Config:          cfg,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		TodoService:     services.NewTodoService(repo, serializer),
		Serializer:      serializer,
		AuthService:     services.NewAuthService(users, sessions, cfg.Auth),
		RegisterService: services.NewRegisterService(users, cfg.Auth.BCryptCost),
		UserService:     services.NewUserService(users, nil),
		Monitor:         monitoring.NewMonitor(),
		RateLimiter:     limiter,
	})
	return &testApp{router: router, repo: repo, users: users}
}

func (a *testApp) createUser(t *testing.T, username, password string) *models.User {
	t.Helper()
	hash, err := services.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{Username: username, Password: hash, IsActive: true}
	require.NoError(t, a.users.Create(context.Background(), user))
	return user
}

type credentials struct {
	username, password string
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}, creds *credentials, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds != nil {
		req.SetBasicAuth(creds.username, creds.password)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRouter_UnauthenticatedNeverReachesStore(t *testing.T) {
	app := newTestApp(t, nil)
	someID := uuid.Must(uuid.NewV4()).String()

	requests := []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodGet, "/api/todos/", nil},
		{http.MethodPost, "/api/todos/", map[string]string{"task": "x"}},
		{http.MethodGet, "/api/todos/" + someID + "/", nil},
		{http.MethodPut, "/api/todos/" + someID + "/", map[string]bool{"completed": true}},
		{http.MethodPatch, "/api/todos/" + someID + "/", map[string]bool{"completed": true}},
		{http.MethodDelete, "/api/todos/" + someID + "/", nil},
	}

	for _, r := range requests {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			w := app.do(t, r.method, r.path, r.body, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, `Basic realm="api"`, w.Header().Get("WWW-Authenticate"))
			body := decode[map[string]string](t, w)
			assert.Equal(t, "Authentication credentials were not provided.", body["detail"])
		})
	}

	assert.Zero(t, app.repo.calls.Load())
}

func TestRouter_BadCredentialsNeverReachStore(t *testing.T) {
	app := newTestApp(t, nil)
	app.createUser(t, "alice", "correct-horse")

	w := app.do(t, http.MethodGet, "/api/todos/", nil, &credentials{"alice", "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid username/password.", decode[map[string]string](t, w)["detail"])

	w = app.do(t, http.MethodGet, "/api/todos/", nil, &credentials{"nobody", "whatever"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Zero(t, app.repo.calls.Load())
}

func TestRouter_InactiveUserRejected(t *testing.T) {
	app := newTestApp(t, nil)
	user := app.createUser(t, "carol", "correct-horse")
	user.IsActive = false
	require.NoError(t, app.users.Update(context.Background(), user))

	w := app.do(t, http.MethodGet, "/api/todos/", nil, &credentials{"carol", "correct-horse"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "User inactive or deleted.", decode[map[string]string](t, w)["detail"])
	assert.Zero(t, app.repo.calls.Load())
}

func TestRouter_CreateRetrieveRoundTrip(t *testing.T) {
	app := newTestApp(t, nil)
	alice := app.createUser(t, "alice", "correct-horse")
	creds := &credentials{"alice", "correct-horse"}

	w := app.do(t, http.MethodPost, "/api/todos/", map[string]interface{}{"task": "x", "owner": uuid.Must(uuid.NewV4()).String()}, creds)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[serializers.TodoRepresentation](t, w)
	require.NotNil(t, created.Owner)
	assert.Equal(t, alice.ID, *created.Owner)

	w = app.do(t, http.MethodGet, "/api/todos/"+created.ID.String()+"/", nil, creds)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[serializers.TodoRepresentation](t, w)
	assert.Equal(t, "x", got.Task)
	assert.False(t, got.Completed)
	assert.Equal(t, created.ID, got.ID)

	w = app.do(t, http.MethodGet, "/api/todos/", nil, creds)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]serializers.TodoRepresentation](t, w), 1)
}

func TestRouter_CreateValidation(t *testing.T) {
	app := newTestApp(t, nil)
	app.createUser(t, "alice", "correct-horse")
	creds := &credentials{"alice", "correct-horse"}

	tests := []struct {
		name    string
		body    interface{}
		field   string
		message string
	}{
		{"empty task", map[string]string{"task": ""}, "task", "This field may not be blank."},
		{"missing task", map[string]bool{"completed": true}, "task", "This field is required."},
		{"too long", map[string]string{"task": strings.Repeat("a", 181)}, "task", "Ensure this field has no more than 180 characters."},
		{"wrong type", map[string]interface{}{"task": "x", "completed": "yes"}, "completed", "Must be a valid boolean."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(t, http.MethodPost, "/api/todos/", tt.body, creds)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			errs := decode[map[string][]string](t, w)
			assert.Equal(t, []string{tt.message}, errs[tt.field])
		})
	}

	w := app.do(t, http.MethodPost, "/api/todos/", "{not json", creds)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["detail"], "JSON parse error")

	w = app.do(t, http.MethodGet, "/api/todos/", nil, creds)
	assert.Empty(t, decode[[]serializers.TodoRepresentation](t, w))
}

func TestRouter_OwnerIsolation(t *testing.T) {
	app := newTestApp(t, nil)
	app.createUser(t, "alice", "correct-horse")
	app.createUser(t, "bob", "battery-staple")
	aliceCreds := &credentials{"alice", "correct-horse"}
	bobCreds := &credentials{"bob", "battery-staple"}

	w := app.do(t, http.MethodPost, "/api/todos/", map[string]string{"task": "secret"}, aliceCreds)
	require.Equal(t, http.StatusCreated, w.Code)
	todo := decode[serializers.TodoRepresentation](t, w)
	detail := "/api/todos/" + todo.ID.String() + "/"

	w = app.do(t, http.MethodGet, "/api/todos/", nil, bobCreds)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]serializers.TodoRepresentation](t, w))

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		w = app.do(t, method, detail, map[string]bool{"completed": true}, bobCreds)
		assert.Equal(t, http.StatusBadRequest, w.Code, method)
		assert.Equal(t, map[string]string{"response": "not found"}, decode[map[string]string](t, w), method)
	}

	w = app.do(t, http.MethodGet, detail, nil, aliceCreds)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[serializers.TodoRepresentation](t, w)
	assert.Equal(t, "secret", got.Task)
	assert.False(t, got.Completed)
}

func TestRouter_PartialUpdate(t *testing.T) {
	app := newTestApp(t, nil)
	app.createUser(t, "alice", "correct-horse")
	creds := &credentials{"alice", "correct-horse"}

	w := app.do(t, http.MethodPost, "/api/todos/", map[string]string{"task": "keep me"}, creds)
	require.Equal(t, http.StatusCreated, w.Code)
	todo := decode[serializers.TodoRepresentation](t, w)
	detail := "/api/todos/" + todo.ID.String() + "/"

	w = app.do(t, http.MethodPut, detail, map[string]bool{"completed": true}, creds)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[serializers.TodoRepresentation](t, w)
	assert.Equal(t, "keep me", updated.Task)
	assert.True(t, updated.Completed)
	assert.WithinDuration(t, todo.CreatedAt, updated.CreatedAt, time.Millisecond)

	w = app.do(t, http.MethodPatch, detail, map[string]string{"task": "renamed"}, creds)
	require.Equal(t, http.StatusOK, w.Code)
	updated = decode[serializers.TodoRepresentation](t, w)
	assert.Equal(t, "renamed", updated.Task)
	assert.True(t, updated.Completed)

	w = app.do(t, http.MethodPatch, detail, map[string]string{"task": "  "}, creds)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"This field may not be blank."}, decode[map[string][]string](t, w)["task"])
}

func TestRouter_DeleteThenRetrieve(t *testing.T) {
	app := newTestApp(t, nil)
	app.createUser(t, "alice", "correct-horse")
	creds := &credentials{"alice", "correct-horse"}

	w := app.do(t, http.MethodPost, "/api/todos/", map[string]string{"task": "done soon"}, creds)
	require.Equal(t, http.StatusCreated, w.Code)
	detail := "/api/todos/" + decode[serializers.TodoRepresentation](t, w).ID.String() + "/"

	w = app.do(t, http.MethodDelete, detail, nil, creds)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"response": "deleted"}, decode[map[string]string](t, w))

	w = app.do(t, http.MethodGet, detail, nil, creds)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]string{"response": "not found"}, decode[map[string]string](t, w))

	w = app.do(t, http.MethodDelete, detail, nil, creds)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_MalformedIDIsNotFound(t *testing.T) {
	app := newTestApp(t, nil)
	app.createUser(t, "alice", "correct-horse")

	w := app.do(t, http.MethodGet, "/api/todos/42/", nil, &credentials{"alice", "correct-horse"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]string{"response": "not found"}, decode[map[string]string](t, w))
}

func TestRouter_SessionLifecycle(t *testing.T) {
	app := newTestApp(t, nil)
	app.createUser(t, "alice", "correct-horse")

	w := app.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "correct-horse"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "sessionid" {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	w = app.do(t, http.MethodPost, "/api/todos/", map[string]string{"task": "via cookie"}, nil, session)
	require.Equal(t, http.StatusCreated, w.Code)

	w = app.do(t, http.MethodGet, "/api/users/me", nil, nil, session)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode[map[string]interface{}](t, w)["username"])

	w = app.do(t, http.MethodPost, "/api/auth/logout", nil, nil, session)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodGet, "/api/todos/", nil, nil, session)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_RegisterAndDeleteAccount(t *testing.T) {
	app := newTestApp(t, nil)

	body := map[string]string{"username": "dave", "email": "Dave@Example.com", "password": "long-enough", "first_name": "Dave", "last_name": "Jones"}
	w := app.do(t, http.MethodPost, "/api/auth/register", body, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = app.do(t, http.MethodPost, "/api/auth/register", body, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = app.do(t, http.MethodPost, "/api/auth/register", map[string]string{"username": "bad name", "password": "long-enough"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	creds := &credentials{"dave", "long-enough"}
	w = app.do(t, http.MethodGet, "/api/users/me", nil, creds)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode[map[string]interface{}](t, w)
	assert.Equal(t, "Dave Jones", profile["full_name"])
	assert.Equal(t, "dave@example.com", profile["email"])

	w = app.do(t, http.MethodPost, "/api/todos/", map[string]string{"task": "orphan me"}, creds)
	require.Equal(t, http.StatusCreated, w.Code)

	w = app.do(t, http.MethodDelete, "/api/users/me", nil, creds)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"response": "deleted"}, decode[map[string]string](t, w))

	w = app.do(t, http.MethodGet, "/api/todos/", nil, creds)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	app := newTestApp(t, nil)

	for _, path := range []string{"/health", "/ready", "/live"} {
		w := app.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	app.do(t, http.MethodGet, "/api/todos/", nil, nil)
	w := app.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="GET",path="/api/todos/",status="401"} 1`)
}

func TestRouter_CORSPreflight(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/todos/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRouter_RateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerMin: 1, Burst: 2})
	app := newTestApp(t, limiter)

	for i := 0; i < 2; i++ {
		w := app.do(t, http.MethodGet, "/api/todos/", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := app.do(t, http.MethodGet, "/api/todos/", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// Operational endpoints sit outside the limited group.
	w = app.do(t, http.MethodGet, "/live", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
