// Package testutil wires in-memory stores and recording collaborators for
// service and transport tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/venue-match/internal/app"
	"github.com/oggyb/venue-match/internal/cache"
	"github.com/oggyb/venue-match/internal/config"
	"github.com/oggyb/venue-match/internal/db"
)

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection serialises access so SQLite never reports "locked".
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Discard,
		NowFunc:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

// NewRedis starts a miniredis and returns a cache bound to it.
func NewRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.Password = ""
	cfg.Redis.DB = 0
	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

// Env is a fully wired AppContext plus handles on its fakes.
type Env struct {
	App      *app.AppContext
	DB       *gorm.DB
	Redis    *miniredis.Miniredis
	Emitter  *RecordingEmitter
	Notifier *RecordingNotifier
	Badges   *RecordingBadges
}

// NewEnv builds an AppContext over fresh SQLite + miniredis with recording
// collaborators and the default matching policy.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	database := NewDB(t)
	rc, mr := NewRedis(t)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Matching.DailySignalLimit = 15
	cfg.Matching.ProvisionalSignalQuota = 3
	cfg.Matching.MinPhotos = 2
	cfg.Presence.TTL = 2 * time.Hour
	cfg.Cache.ConnectionsTTL = 5 * time.Minute
	cfg.Cache.HistoryTTL = 5 * time.Minute
	cfg.Cache.PairLockTTL = 5 * time.Second

	appCtx := app.New(cfg, database, rc, zerolog.Nop())
	env := &Env{
		App:      appCtx,
		DB:       database,
		Redis:    mr,
		Emitter:  &RecordingEmitter{},
		Notifier: &RecordingNotifier{},
		Badges:   &RecordingBadges{},
	}
	appCtx.Emitter = env.Emitter
	appCtx.Notifier = env.Notifier
	appCtx.Badges = env.Badges
	return env
}
