package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"veris/internal/auth/store/revocation"
	"veris/internal/events"
	eventsmemory "veris/internal/events/store/memory"
	eventspostgres "veris/internal/events/store/postgres"
	"veris/internal/events/stream/amqp"
	"veris/internal/events/stream/kafka"
	httpapi "veris/internal/http"
	"veris/internal/identity/handler"
	"veris/internal/identity/metrics"
	"veris/internal/identity/service"
	identitystore "veris/internal/identity/store/identity"
	membershipstore "veris/internal/identity/store/membership"
	jwttoken "veris/internal/jwt_token"
	"veris/internal/platform/config"
	"veris/internal/platform/health"
	"veris/internal/platform/httpserver"
	"veris/internal/platform/logger"
	"veris/internal/platform/postgres"
	"veris/internal/platform/ratelimit"
	platformredis "veris/internal/platform/redis"
	"veris/pkg/platform/middleware/auth"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx := context.Background()
	healthReg := health.NewRegistry()

	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}

	var identities service.IdentityStore
	var eventStore events.Store
	if db != nil {
		defer db.Close()

		pgIdentities := identitystore.NewPostgres(db)
		if err := pgIdentities.EnsureSchema(ctx); err != nil {
			log.Error("identity schema migration failed", "error", err)
			os.Exit(1)
		}
		pgEvents := eventspostgres.New(db)
		if err := pgEvents.EnsureSchema(ctx); err != nil {
			log.Error("event schema migration failed", "error", err)
			os.Exit(1)
		}
		identities = pgIdentities
		eventStore = pgEvents
		healthReg.Register("postgres", health.CheckerFunc(db.PingContext))
	} else {
		log.Warn("POSTGRES_DSN not set, using in-memory stores")
		identities = identitystore.NewInMemory()
		eventStore = eventsmemory.NewStore()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	var members service.MembershipStore
	var revocationChecker auth.TokenRevocationChecker
	if redisClient != nil {
		defer redisClient.Close()
		members = membershipstore.NewRedis(redisClient.Client)
		revocationChecker = revocation.NewRedisTRL(redisClient.Client)
		healthReg.Register("redis", redisClient)
	} else {
		log.Warn("REDIS_URL not set, using in-memory membership store")
		members = membershipstore.NewInMemory()
	}

	publisher := events.NewPublisher(eventStore)
	sinks := []events.Sink{publisher}

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := kafka.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka sink setup failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}
	if cfg.AMQP.URL != "" {
		amqpSink, err := amqp.New(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Error("amqp sink setup failed", "error", err)
			os.Exit(1)
		}
		defer amqpSink.Close()
		sinks = append(sinks, amqpSink)
	}

	registry := service.New(identities, members,
		service.WithLogger(log),
		service.WithSink(events.NewMulti(sinks...)),
		service.WithMetrics(metrics.New()),
	)

	var limiter ratelimit.Limiter
	if cfg.RateLimitPerMinute > 0 {
		if redisClient != nil {
			limiter = ratelimit.NewRedis(redisClient.Client, cfg.RateLimitPerMinute, time.Minute)
		} else {
			limiter = ratelimit.NewInMemory(cfg.RateLimitPerMinute, time.Minute)
		}
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	router := httpapi.NewRouter(httpapi.Deps{
		Identity:          handler.New(registry, publisher, log),
		JWTValidator:      jwttoken.NewJWTServiceAdapter(jwtService),
		RevocationChecker: revocationChecker,
		Limiter:           limiter,
		Health:            healthReg,
		Logger:            log,
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting veris", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("veris stopped")
}
