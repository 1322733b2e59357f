package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/microvault/strain-registry/internal/config"
	"github.com/microvault/strain-registry/internal/handler"
	"github.com/microvault/strain-registry/internal/middleware"
	"github.com/microvault/strain-registry/internal/repository"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the account endpoints.  /auth/register is the
// unauthenticated bootstrap path (self-limiting: it closes once an admin
// exists) and /auth/login is throttled by the Redis token bucket.  The
// admin provisioning endpoints require a resolved principal; the admin-role
// decision itself lives in the policy layer, not in route middleware.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, users *repository.UserRepo, rdb *redis.Client) {
	g := e.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	admin := g.Group("/admin")
	admin.Use(middleware.Authenticate(a.Cfg.JWTSecret, users))
	admin.POST("/create-user", a.CreateUser)
	admin.DELETE("/users/:id", a.DeleteUser)
}

// RegisterStrains registers the strain registry endpoints.  Every route
// resolves the principal from the store before the handler runs; the
// clearance scope and mutation rules are enforced in the service layer.
func RegisterStrains(e *echo.Echo, s *handler.StrainHandler, jwtSecret string, users *repository.UserRepo) {
	g := e.Group("/strains")
	g.Use(middleware.Authenticate(jwtSecret, users))
	g.GET("", s.List)
	g.GET("/:id", s.Get)
	g.POST("", s.Create)
	g.PUT("/:id", s.Update)
	g.DELETE("/:id", s.Delete)
	g.PATCH("/:id/restore", s.Restore)
}
