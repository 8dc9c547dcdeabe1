// Package router assembles the echo instance: global middleware, error
// handling and route registration.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/sakila-city-api/internal/config"
	"github.com/iliyamo/sakila-city-api/internal/handler"
	"github.com/iliyamo/sakila-city-api/internal/middleware"
)

// Deps are the collaborators the routes need. Redis may be nil.
type Deps struct {
	DB        *sql.DB
	Redis     *redis.Client
	Cache     *middleware.ResponseCache
	RateLimit config.RateLimitConfig
	Logger    zerolog.Logger
	Cities    *handler.CityHandler
	Health    *handler.HealthHandler
}

// New returns an echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = handler.JSONSerializer{}
	e.HTTPErrorHandler = handler.ErrorHandler

	e.Use(middleware.RequestID())
	e.Use(middleware.ContextLogger(d.Logger))
	e.Use(middleware.RequestLogger())
	e.Use(echomw.Recover())
	e.Use(middleware.Metrics())
	e.Use(middleware.NewRateLimiter(d.RateLimit, d.Redis))

	RegisterRoutes(e, d)
	return e
}

// RegisterRoutes maps the API. Data routes check out one database
// connection per request; cached GETs are answered before a connection is
// taken.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/", handler.Index)
	e.GET("/healthz", d.Health.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	conn := middleware.DBConn(d.DB)
	cache := d.Cache.Middleware()

	e.POST("/cities", d.Cities.Create, conn)
	e.GET("/cities", d.Cities.List, cache, conn)
	e.GET("/lang_roles", handler.LangRoles, cache, conn)
}
