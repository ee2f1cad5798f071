package venue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oggyb/venue-match/internal/app"
	"github.com/oggyb/venue-match/internal/broadcast"
	"github.com/oggyb/venue-match/internal/db"
	svcErr "github.com/oggyb/venue-match/internal/errors"
	"github.com/oggyb/venue-match/internal/notify"
	"github.com/oggyb/venue-match/internal/repository"
	"github.com/oggyb/venue-match/internal/service/compass"
)

// UserJoinedPayload is sent to each venue member when someone arrives. The
// score is computed from the receiving member's side.
type UserJoinedPayload struct {
	VenueID string        `json:"venueId"`
	User    compass.Entry `json:"user"`
}

// UserLeftPayload is sent to a venue room when a member leaves it.
type UserLeftPayload struct {
	VenueID string `json:"venueId"`
	UserID  string `json:"userId"`
}

// Service runs the venue join protocol and durable check-ins.
type Service struct {
	appCtx   *app.AppContext
	profiles *repository.ProfileRepository
	conns    *repository.ConnectionRepository
	blocks   *repository.BlockRepository
	sessions *repository.SessionRepository
	venues   *repository.VenueRepository
	now      func() time.Time
}

// NewVenueService creates the venue service with dependencies from AppContext.
func NewVenueService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		profiles: repository.NewProfileRepository(appCtx.DB),
		conns:    repository.NewConnectionRepository(appCtx.DB),
		blocks:   repository.NewBlockRepository(appCtx.DB),
		sessions: repository.NewSessionRepository(appCtx.DB),
		venues:   repository.NewVenueRepository(appCtx.DB),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// JoinVenue moves the socket's user into venueID and returns the roster
// that was emitted to the socket.
//
// Behavior:
//   - Fewer than MinPhotos photos → INSUFFICIENT_PHOTOS, presence untouched.
//   - Leaving a previous venue emits user_left there and leaves both of its rooms.
//   - The roster excludes self, connected users, incognito users and users
//     blocked in either direction, then applies filters and compass ranking.
//   - compass_update goes to this socket only; user_joined goes to every other
//     member's personal room with that member's own score, unless the joiner
//     is incognito.
func (s *Service) JoinVenue(ctx context.Context, sock broadcast.Socket, venueID string, filters compass.Filters) ([]compass.Entry, error) {
	userID := sock.UserID()
	log := s.appCtx.Logger.With().Str("user", userID).Str("venue", venueID).Logger()
	log.Debug().Msg("JoinVenue called")

	if venueID == "" {
		return nil, svcErr.InvalidArgument("venueId is required")
	}

	user, err := s.profiles.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, svcErr.NotFound("profile not found")
	}
	if err != nil {
		log.Error().Err(err).Msg("load user failed")
		return nil, err
	}
	if _, err := s.venues.Get(ctx, venueID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, svcErr.NotFound("venue not found")
		}
		log.Error().Err(err).Msg("load venue failed")
		return nil, err
	}

	minPhotos := s.appCtx.Config.Matching.MinPhotos
	if len(user.Profile.Photos) < minPhotos {
		return nil, svcErr.Policy(svcErr.CodeInsufficientPhotos,
			fmt.Sprintf("upload at least %d photos to join a venue", minPhotos))
	}

	connected, err := s.conns.ConnectedUserIDs(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("load connections failed")
		return nil, err
	}
	blocked, err := s.blocks.BlockedUserIDs(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("load blocks failed")
		return nil, err
	}

	previous, err := s.appCtx.Presence.Join(ctx, venueID, userID)
	if err != nil {
		log.Error().Err(err).Msg("presence join failed")
		return nil, err
	}
	s.switchRooms(ctx, sock, previous, venueID)

	now := s.now()
	members, err := s.appCtx.Presence.Members(ctx, venueID)
	if err != nil {
		log.Error().Err(err).Msg("presence members failed")
		return nil, err
	}
	others := make([]string, 0, len(members))
	for _, id := range members {
		if id == userID {
			continue
		}
		if _, ok := blocked[id]; ok {
			continue
		}
		others = append(others, id)
	}

	lookup := append([]string{userID}, others...)
	incognito, err := s.sessions.IncognitoUserIDs(ctx, lookup, now)
	if err != nil {
		log.Error().Err(err).Msg("load incognito sessions failed")
		return nil, err
	}
	users, err := s.profiles.GetUsers(ctx, others)
	if err != nil {
		log.Error().Err(err).Msg("load members failed")
		return nil, err
	}

	candidates := make([]*db.User, 0, len(others))
	for _, id := range others {
		if _, ok := connected[id]; ok {
			continue
		}
		if _, ok := incognito[id]; ok {
			continue
		}
		if u, ok := users[id]; ok {
			candidates = append(candidates, u)
		}
	}

	roster := compass.Rank(user, candidates, filters, now)
	sock.Emit(broadcast.EventCompassUpdate, roster)

	if _, hidden := incognito[userID]; !hidden {
		for _, id := range others {
			member, ok := users[id]
			if !ok {
				continue
			}
			payload := UserJoinedPayload{VenueID: venueID, User: compass.EntryFor(user, member.Profile, now)}
			if err := s.appCtx.Emitter.EmitToRoom(ctx, broadcast.PersonalRoom(id), broadcast.EventUserJoined, payload); err != nil {
				log.Warn().Err(err).Str("member", id).Msg("emit user_joined failed")
			}
		}
	}

	log.Debug().Int("roster", len(roster)).Int("members", len(others)).Msg("JoinVenue result")
	return roster, nil
}

// switchRooms leaves the previous venue (presence registry or socket view,
// whichever knows about it) and enters venueID's rooms as one VenueSession.
func (s *Service) switchRooms(ctx context.Context, sock broadcast.Socket, previous, venueID string) {
	userID := sock.UserID()

	if current, ok := sock.VenueSession(); ok && current.VenueID != venueID && current.VenueID != previous {
		for _, r := range current.Rooms() {
			sock.Leave(r)
		}
	}
	if previous != "" && previous != venueID {
		old := broadcast.NewVenueSession(previous)
		payload := UserLeftPayload{VenueID: previous, UserID: userID}
		if err := s.appCtx.Emitter.EmitToRoom(ctx, old.Presence, broadcast.EventUserLeft, payload); err != nil {
			s.appCtx.Logger.Warn().Err(err).Str("venue", previous).Msg("emit user_left failed")
		}
		for _, r := range old.Rooms() {
			sock.Leave(r)
		}
	}

	vs := broadcast.NewVenueSession(venueID)
	for _, r := range vs.Rooms() {
		sock.Join(r)
	}
	sock.SetVenueSession(&vs)
}

// Disconnect ends the user's stay in venueID after the socket that joined
// it closed. Presence and the durable check-in are only removed while they
// still name venueID, so a user who has since joined elsewhere (on any
// instance) keeps that newer state. A missing session is not an error.
func (s *Service) Disconnect(ctx context.Context, userID, venueID string) error {
	log := s.appCtx.Logger.With().Str("user", userID).Str("venue", venueID).Logger()
	log.Debug().Msg("Disconnect called")

	if venueID == "" {
		return nil
	}

	left, err := s.appCtx.Presence.Leave(ctx, userID, venueID)
	if err != nil {
		log.Error().Err(err).Msg("presence leave failed")
		return err
	}
	if left {
		payload := UserLeftPayload{VenueID: venueID, UserID: userID}
		if err := s.appCtx.Emitter.EmitToRoom(ctx, broadcast.VenueRoom(venueID), broadcast.EventUserLeft, payload); err != nil {
			log.Warn().Err(err).Msg("emit user_left failed")
		}
	}

	if err := s.sessions.Delete(ctx, userID, venueID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Error().Err(err).Msg("delete active session failed")
		return err
	}
	return nil
}

// SweepExpiredSessions deletes check-ins past their expiry.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now())
}

// CheckIn creates or replaces the user's single ActiveSession.
//
// Behavior:
//   - Expiry is now + presence TTL (2h by default).
//   - Fires the NEW_CHECKIN badge trigger after the write.
func (s *Service) CheckIn(ctx context.Context, userID, venueID string, incognito bool) (*db.ActiveSession, error) {
	log := s.appCtx.Logger.With().Str("user", userID).Str("venue", venueID).Logger()
	log.Debug().Bool("incognito", incognito).Msg("CheckIn called")

	if venueID == "" {
		return nil, svcErr.InvalidArgument("venueId is required")
	}
	if _, err := s.profiles.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, svcErr.NotFound("profile not found")
		}
		return nil, err
	}
	if _, err := s.venues.Get(ctx, venueID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, svcErr.NotFound("venue not found")
		}
		return nil, err
	}

	session := &db.ActiveSession{
		UserID:      userID,
		VenueID:     venueID,
		IsIncognito: incognito,
		ExpiresAt:   s.now().Add(s.appCtx.Config.Presence.TTL),
	}
	if err := s.sessions.Upsert(ctx, session); err != nil {
		log.Error().Err(err).Msg("upsert active session failed")
		return nil, err
	}

	if err := s.appCtx.Badges.Evaluate(context.WithoutCancel(ctx), userID, notify.TriggerNewCheckIn); err != nil {
		log.Warn().Err(err).Msg("badge evaluation failed")
	}
	return session, nil
}
