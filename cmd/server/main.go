package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/iliyamo/sakila-city-api/internal/config"
	"github.com/iliyamo/sakila-city-api/internal/database"
	"github.com/iliyamo/sakila-city-api/internal/handler"
	"github.com/iliyamo/sakila-city-api/internal/logging"
	"github.com/iliyamo/sakila-city-api/internal/middleware"
	"github.com/iliyamo/sakila-city-api/internal/queue"
	"github.com/iliyamo/sakila-city-api/internal/router"
	"github.com/iliyamo/sakila-city-api/internal/service"
	"github.com/iliyamo/sakila-city-api/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Log, nil)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("open database")
	}
	defer db.Close()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	} else if cfg.Redis.Addr != "" {
		log.Warn().Str("addr", cfg.Redis.Addr).Msg("redis unreachable; cache disabled, rate limits are per process")
	}
	cache := middleware.NewResponseCache(cfg.Cache, rdb)

	var publisher queue.Publisher = queue.NopPublisher{}
	health := &handler.HealthHandler{DB: db, Redis: rdb}
	if cfg.Broker.Enabled {
		rp := queue.NewRabbitPublisher(cfg.Broker, log)
		publisher = rp
		health.Breaker = rp
	}

	e := router.New(router.Deps{
		DB:        db,
		Redis:     rdb,
		Cache:     cache,
		RateLimit: cfg.RateLimit,
		Logger:    log,
		Cities:    handler.NewCityHandler(service.NewCityService(publisher, cache)),
		Health:    health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(log, supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddAPIService(supervisor.NewHTTPService(srv, cfg.Server.ShutdownTimeout))
	if cfg.Broker.Enabled && cfg.Broker.Consume {
		tree.AddMessagingService(queue.NewConsumer(cfg.Broker, log))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("addr", srv.Addr).
		Str("env", cfg.App.Env).
		Str("driver", cfg.Database.Driver).
		Bool("redis", rdb != nil).
		Bool("broker", cfg.Broker.Enabled).
		Msg("listening")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("supervisor stopped")
	}
	log.Info().Msg("shut down")
}
