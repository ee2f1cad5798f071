package connection

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/oggyb/venue-match/internal/app"
	"github.com/oggyb/venue-match/internal/cache"
	svcErr "github.com/oggyb/venue-match/internal/errors"
	"github.com/oggyb/venue-match/internal/repository"
	"github.com/oggyb/venue-match/internal/service/profile"
	"github.com/oggyb/venue-match/internal/utils/pagination"
)

// Item is one row of a connection list: the match plus the other party.
type Item struct {
	ConnectionID string           `json:"connectionId"`
	CreatedAt    time.Time        `json:"createdAt"`
	Partner      profile.Snapshot `json:"partner"`
}

// Page is a cached page of connections.
type Page struct {
	Items      []Item `json:"items"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int64  `json:"total"`
	TotalPages int    `json:"totalPages"`
}

// Service maintains the symmetric match relation.
type Service struct {
	appCtx   *app.AppContext
	conns    *repository.ConnectionRepository
	blocks   *repository.BlockRepository
	profiles *repository.ProfileRepository
	group    singleflight.Group
	now      func() time.Time
}

// NewConnectionService creates the connection graph service with dependencies from AppContext.
func NewConnectionService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		conns:    repository.NewConnectionRepository(appCtx.DB),
		blocks:   repository.NewBlockRepository(appCtx.DB),
		profiles: repository.NewProfileRepository(appCtx.DB),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Unmatch deletes a connection the requester is party to.
//
// Behavior:
//   - Unknown connection → NOT_FOUND (every time, so a repeat is consistent).
//   - Requester not a party → FORBIDDEN.
//   - Sweeps every cached connection page of both parties.
func (s *Service) Unmatch(ctx context.Context, requesterID, connectionID string) error {
	log := s.appCtx.Logger.With().Str("user", requesterID).Str("connection", connectionID).Logger()
	log.Debug().Msg("Unmatch called")

	if connectionID == "" {
		return svcErr.InvalidArgument("connectionId is required")
	}

	conn, err := s.conns.GetByID(ctx, connectionID)
	if errors.Is(err, repository.ErrNotFound) {
		return svcErr.NotFound("connection not found")
	}
	if err != nil {
		log.Error().Err(err).Msg("load connection failed")
		return err
	}
	if !conn.Involves(requesterID) {
		return svcErr.Forbidden("you are not part of this connection")
	}

	if err := s.conns.Delete(ctx, connectionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return svcErr.NotFound("connection not found")
		}
		log.Error().Err(err).Msg("delete connection failed")
		return err
	}

	s.invalidate(ctx, conn.UserAID, conn.UserBID)
	return nil
}

// ListConnections returns one page of the user's matches, newest first.
//
// Behavior:
//   - Pages are cached per (user, page, limit) under the user's connections prefix.
//   - Concurrent misses for the same key share one database read.
//   - Partner cards carry public fields only.
func (s *Service) ListConnections(ctx context.Context, userID string, page, limit int) (*Page, error) {
	page, limit = pagination.Normalize(page, limit)
	key := cache.KeyForConnectionsPage(userID, page, limit)
	log := s.appCtx.Logger.With().Str("user", userID).Int("page", page).Logger()
	log.Debug().Msg("ListConnections called")

	var cached Page
	err := s.appCtx.RedisCache.GetJSON(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Msg("connections cache read failed")
	}

	prefix := cache.ConnectionsPrefix(userID)
	v, err, _ := s.group.Do(key, func() (any, error) {
		version, verr := s.appCtx.RedisCache.Version(ctx, prefix)
		result, err := s.loadPage(ctx, userID, page, limit)
		if err != nil || verr != nil {
			return result, err
		}
		// an unmatch or new match during the load keeps this page out of the cache
		if _, err := s.appCtx.RedisCache.SetJSONIfVersion(ctx, prefix, version, key, result, s.appCtx.Config.Cache.ConnectionsTTL); err != nil {
			log.Warn().Err(err).Msg("connections cache write failed")
		}
		return result, nil
	})
	if err != nil {
		log.Error().Err(err).Msg("load connections failed")
		return nil, err
	}
	return v.(*Page), nil
}

func (s *Service) loadPage(ctx context.Context, userID string, page, limit int) (*Page, error) {
	conns, total, err := s.conns.ListForUser(ctx, userID, pagination.Offset(page, limit), limit)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(conns))
	for i := range conns {
		ids = append(ids, conns[i].Other(userID))
	}
	users, err := s.profiles.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := &Page{
		Items:      make([]Item, 0, len(conns)),
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: pagination.TotalPages(total, limit),
	}
	for i := range conns {
		item := Item{ConnectionID: conns[i].ID, CreatedAt: conns[i].CreatedAt}
		if u, ok := users[conns[i].Other(userID)]; ok {
			item.Partner = profile.FromUser(u, now)
		} else {
			item.Partner = profile.Snapshot{UserID: conns[i].Other(userID)}
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

// Block records blocker → blocked and removes any connection between them.
// Blocking twice is a no-op.
func (s *Service) Block(ctx context.Context, blockerID, blockedID string) error {
	log := s.appCtx.Logger.With().Str("user", blockerID).Str("target", blockedID).Logger()
	log.Debug().Msg("Block called")

	if blockedID == "" || blockedID == blockerID {
		return svcErr.InvalidArgument("a valid target user is required")
	}

	var removed bool
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		removed, err = s.blockTx(ctx, tx, blockerID, blockedID)
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("block failed")
		return err
	}
	if removed {
		s.invalidate(ctx, blockerID, blockedID)
	}
	return nil
}

// Report files an abuse report, blocks the target and removes any
// connection.
//
// Behavior:
//   - A second report of the same target within 24h → TOO_MANY_REQUESTS.
//   - The implied block is idempotent.
func (s *Service) Report(ctx context.Context, reporterID, targetID, reason string) error {
	log := s.appCtx.Logger.With().Str("user", reporterID).Str("target", targetID).Logger()
	log.Debug().Msg("Report called")

	if targetID == "" || targetID == reporterID {
		return svcErr.InvalidArgument("a valid target user is required")
	}

	// the 24h check and the insert must not interleave with a concurrent
	// report of the same target from another instance
	lockTTL := s.appCtx.Config.Cache.PairLockTTL
	release, err := s.appCtx.RedisCache.AcquireLock(ctx, cache.ReportLockKey(reporterID, targetID), lockTTL, lockTTL)
	if err != nil {
		log.Error().Err(err).Msg("report lock failed")
		return err
	}
	defer release()

	now := s.now()
	var removed bool
	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		blocks := s.blocks.WithTx(tx)
		recent, err := blocks.CountReportsSince(ctx, reporterID, targetID, now.Add(-24*time.Hour))
		if err != nil {
			return err
		}
		if recent > 0 {
			return svcErr.Policy(svcErr.CodeTooManyRequests, "you already reported this user in the last 24 hours")
		}
		if _, err := blocks.CreateReport(ctx, reporterID, targetID, reason, now); err != nil {
			return err
		}
		removed, err = s.blockTx(ctx, tx, reporterID, targetID)
		return err
	})
	if svcErr.IsPolicy(err) {
		return err
	}
	if err != nil {
		log.Error().Err(err).Msg("report failed")
		return err
	}
	if removed {
		s.invalidate(ctx, reporterID, targetID)
	}
	return nil
}

func (s *Service) blockTx(ctx context.Context, tx *gorm.DB, blockerID, blockedID string) (bool, error) {
	if err := s.blocks.WithTx(tx).Create(ctx, blockerID, blockedID); err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
		return false, err
	}
	return s.conns.WithTx(tx).DeleteByPair(ctx, blockerID, blockedID)
}

func (s *Service) invalidate(ctx context.Context, userIDs ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range userIDs {
		if _, err := s.appCtx.RedisCache.Invalidate(ctx, cache.ConnectionsPrefix(id)); err != nil {
			s.appCtx.Logger.Warn().Err(err).Str("user", id).Msg("connection cache sweep failed")
		}
	}
}
