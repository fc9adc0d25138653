package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/userhub/internal/auth"
	"github.com/geocoder89/userhub/internal/cache"
	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func NewRouter(cfg config.Config, log *slog.Logger, pool *pgxpool.Pool, store cache.Store) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// metrics registry is private to the process
	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(1 << 20))
	r.Use(prom.GinHandleMiddleware())
	r.Use(otelgin.Middleware("userhub"))

	// health
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	h := handlers.NewHealthHandler(ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(pool, prom)
	locationsRepo := postgres.NewLocationsRepo(pool, prom)

	// wire up handlers
	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	authMw := middlewares.NewAuthMiddleware(jwtManager)

	authHandler := handlers.NewAuthHandler(usersRepo, jwtManager)
	usersHandler := handlers.NewUsersHandler(usersRepo)
	locationsHandler := handlers.NewLocationsHandler(locationsRepo, store)

	// authorization policy table: who may call what, and whether the
	// caller must own the addressed record
	var (
		anyRole      = middlewares.Policy{Roles: []string{user.RoleAdmin, user.RoleUser}}
		adminOnly    = middlewares.Policy{Roles: []string{user.RoleAdmin}}
		ownerOrAdmin = middlewares.Policy{Roles: []string{user.RoleAdmin, user.RoleUser}, OwnerParam: "id"}
	)

	// auth endpoints are the brute-force target, so they get an IP limiter
	authLimiter := middlewares.NewRateLimiter(10, time.Minute)

	authGroup := r.Group("/api/auth")
	authGroup.Use(authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	usersGroup := r.Group("/api/users")
	usersGroup.Use(authMw.RequireAuth())
	{
		usersGroup.GET("/", authMw.Require(anyRole), usersHandler.ListUsers)
		usersGroup.GET("/users-by-city", authMw.Require(anyRole), usersHandler.UsersByCity)
		usersGroup.GET("/:id", authMw.Require(anyRole), usersHandler.GetUserByID)
		usersGroup.POST("/", authMw.Require(adminOnly), usersHandler.CreateUser)
		usersGroup.PUT("/:id", authMw.Require(ownerOrAdmin), usersHandler.UpdateUser)
		usersGroup.DELETE("/:id", authMw.Require(adminOnly), usersHandler.DeleteUser)
	}

	locationGroup := r.Group("/api/location")
	{
		locationGroup.GET("/countries", locationsHandler.Countries)
		locationGroup.GET("/states/:countryId", locationsHandler.StatesByCountry)
		locationGroup.GET("/cities/:stateId", locationsHandler.CitiesByState)
		locationGroup.GET("/country/:id", locationsHandler.CountryByID)
		locationGroup.GET("/state/:id", locationsHandler.StateByID)
		locationGroup.GET("/city/:id", locationsHandler.CityByID)
	}

	return r
}
