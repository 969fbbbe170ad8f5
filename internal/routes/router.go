package routes

import (
	"log/slog"
	"net/http"

	"todo-api/backend/internal/config"
	"todo-api/backend/internal/handlers"
	"todo-api/backend/internal/middleware"
	"todo-api/backend/internal/monitoring"
	"todo-api/backend/internal/serializers"
	"todo-api/backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Dependencies is everything the router hands to handlers. RateLimiter may
// be nil to disable limiting.
type Dependencies struct {
	Config          *config.Config
	Logger          *slog.Logger
	TodoService     services.TodoService
	Serializer      *serializers.TodoSerializer
	AuthService     services.AuthService
	RegisterService services.RegisterService
	UserService     services.UserService
	Monitor         *monitoring.Monitor
	RateLimiter     *middleware.RateLimiter
}

func SetupRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RecoveryWithLogger(logger))
	router.Use(middleware.RequestLogger(logger))
	if deps.Monitor != nil {
		router.Use(deps.Monitor.Middleware())
	}
	if len(cfg.CORS.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           cfg.CORS.MaxAge,
		}))
	}

	if deps.Monitor != nil {
		router.GET("/health", deps.Monitor.HealthHandler())
		router.GET("/ready", deps.Monitor.ReadinessHandler())
		router.GET("/live", deps.Monitor.LivenessHandler())
		router.GET("/metrics", deps.Monitor.MetricsHandler())
	}

	authHandler := handlers.NewAuthHandler(deps.AuthService, cfg.Auth, logger)
	logoutHandler := handlers.NewLogoutHandler(deps.AuthService, cfg.Auth, logger)
	registerHandler := handlers.NewRegisterHandler(deps.RegisterService, logger)
	userHandler := handlers.NewUserHandler(deps.UserService, cfg.Auth, logger)
	todoListHandler := handlers.NewTodoListHandler(deps.TodoService, deps.Serializer, logger)
	todoDetailHandler := handlers.NewTodoDetailHandler(deps.TodoService, deps.Serializer, logger)

	gate := middleware.AuthRequired(middleware.AuthConfig{
		Auth:       deps.AuthService,
		CookieName: cfg.Auth.SessionCookieName,
		Logger:     logger,
	})

	api := router.Group("/api")
	if deps.RateLimiter != nil {
		api.Use(deps.RateLimiter.Middleware())
	}

	auth := api.Group("/auth")
	{
		auth.POST("/register", registerHandler.Registration)
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", gate, logoutHandler.Logout)
	}

	todos := api.Group("/todos", gate)
	{
		todos.GET("/", todoListHandler.List)
		todos.POST("/", todoListHandler.Create)
		todos.GET("/:id/", todoDetailHandler.Retrieve)
		todos.PUT("/:id/", todoDetailHandler.Update)
		todos.PATCH("/:id/", todoDetailHandler.Update)
		todos.DELETE("/:id/", todoDetailHandler.Delete)
	}

	users := api.Group("/users", gate)
	{
		users.GET("/me", userHandler.GetMe)
		users.DELETE("/me", userHandler.DeleteMe)
	}

	return router
}
