package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/oggyb/venue-match/internal/app"
	"github.com/oggyb/venue-match/internal/auth"
	"github.com/oggyb/venue-match/internal/broadcast"
	"github.com/oggyb/venue-match/internal/cache"
	"github.com/oggyb/venue-match/internal/config"
	"github.com/oggyb/venue-match/internal/db"
	"github.com/oggyb/venue-match/internal/logger"
	"github.com/oggyb/venue-match/internal/moderation"
	"github.com/oggyb/venue-match/internal/notify"
	"github.com/oggyb/venue-match/internal/realtime"
	"github.com/oggyb/venue-match/internal/server"
	"github.com/oggyb/venue-match/internal/service/chat"
	"github.com/oggyb/venue-match/internal/service/connection"
	signalsvc "github.com/oggyb/venue-match/internal/service/signal"
	"github.com/oggyb/venue-match/internal/service/venue"
)

const sessionSweepInterval = 10 * time.Minute

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := *logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to init db")
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error().Err(err).Msg("failed to connect to redis")
		return
	}
	defer redisCache.Close()

	appCtx := app.New(cfg, database, redisCache, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Notifications: Kafka when brokers are configured, log-only otherwise
	var pub notify.Publisher = notify.NewLogPublisher(log)
	if len(cfg.Kafka.Brokers) > 0 {
		pub = notify.NewKafkaPublisher(cfg.Kafka.Brokers, log)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("kafka publisher enabled")
	}
	defer pub.Close()
	appCtx.Notifier = notify.NewPushNotifier(pub, cfg.Kafka.PushTopic)
	appCtx.Badges = notify.NewBadgeTrigger(pub, cfg.Kafka.BadgeTopic)

	// Realtime: local hub, optionally fanned out across instances via Redis
	hub := realtime.NewHub(log)
	var emitter broadcast.Emitter = hub
	if cfg.Presence.FanoutEnabled {
		fanout := realtime.NewFanout(redisCache.Client, cfg.Presence.FanoutChannel, hub, log)
		done, err := fanout.Start(ctx, 5*time.Second)
		if err != nil {
			// without the subscription other instances' emissions never arrive
			log.Error().Err(err).Msg("fanout subscribe failed")
			return
		}
		go func() {
			if err := <-done; err != nil || ctx.Err() == nil {
				log.Error().Err(err).Msg("fanout stopped, shutting down")
				stop()
			}
		}()
		emitter = fanout
	}
	appCtx.Emitter = emitter

	venueSvc := venue.NewVenueService(appCtx)
	dispatcher := realtime.NewDispatcher(
		signalsvc.NewSignalService(appCtx),
		venueSvc,
		chat.NewChatService(appCtx, moderation.NewFilter(moderation.DefaultWords...)),
		log,
	)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	limits := realtime.Limits{
		EventsPerSecond: cfg.Realtime.EventsPerSecond,
		EventBurst:      cfg.Realtime.EventBurst,
		SendBuffer:      cfg.Realtime.SendBuffer,
	}
	wsHandler := realtime.NewHandler(hub, dispatcher, tokens, limits, cfg.HTTP.AllowedOrigins, log)

	if cfg.App.SeedOnStart {
		log.Warn().Msg("SEED_ON_START set: replacing all data with seed data")
		if _, err := db.SeedTestData(database); err != nil {
			log.Error().Err(err).Msg("failed to seed")
		}
	}

	go sweepSessions(ctx, venueSvc, log)

	// gRPC
	registrars := []server.Registrar{
		connection.NewRegistrar(appCtx),
		venue.NewRegistrar(appCtx),
		chat.NewRegistrar(appCtx),
	}
	grpcServer := server.NewGRPCServer(tokens, log, registrars...)
	go func() {
		log.Info().Str("addr", cfg.GRPC.Host+":"+cfg.GRPC.Port).Msg("starting gRPC server")
		if err := server.StartGRPCServer(cfg, grpcServer); err != nil {
			log.Error().Err(err).Msg("gRPC server stopped")
			stop()
		}
	}()

	// HTTP: websocket upgrade, health, metrics
	checks := map[string]server.Pinger{
		"redis": redisCache,
		"db": server.PingFunc(func(ctx context.Context) error {
			sqlDB, err := database.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	}
	httpServer := server.NewHTTPServer(cfg, server.NewRouter(log, checks, wsHandler.ServeWS))
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown")
	}
	grpcServer.GracefulStop()
}

// sweepSessions deletes expired check-ins until ctx is cancelled.
func sweepSessions(ctx context.Context, svc *venue.Service, log zerolog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.SweepExpiredSessions(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("session sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("expired sessions swept")
			}
		}
	}
}
