package app

import (
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/oggyb/venue-match/internal/broadcast"
	"github.com/oggyb/venue-match/internal/cache"
	"github.com/oggyb/venue-match/internal/config"
	"github.com/oggyb/venue-match/internal/notify"
	"github.com/oggyb/venue-match/internal/presence"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
//
// Emitter, Notifier and Badges are the outbound collaborators of the
// services; cmd/server points them at the realtime hub and Kafka.
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Presence   *presence.Registry
	Logger     zerolog.Logger

	Emitter  broadcast.Emitter
	Notifier notify.Notifier
	Badges   notify.BadgeEvaluator
}

// New creates a new AppContext. Notifications default to the log publisher
// until real ones are assigned.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger zerolog.Logger) *AppContext {
	logPub := notify.NewLogPublisher(logger)
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Presence:   presence.NewRegistry(rdb.Client, cfg.Presence.TTL),
		Logger:     logger,
		Notifier:   notify.NewPushNotifier(logPub, cfg.Kafka.PushTopic),
		Badges:     notify.NewBadgeTrigger(logPub, cfg.Kafka.BadgeTopic),
	}
}
