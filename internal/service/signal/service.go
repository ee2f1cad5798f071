package signal

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/venue-match/internal/app"
	"github.com/oggyb/venue-match/internal/broadcast"
	"github.com/oggyb/venue-match/internal/cache"
	"github.com/oggyb/venue-match/internal/db"
	svcErr "github.com/oggyb/venue-match/internal/errors"
	"github.com/oggyb/venue-match/internal/metrics"
	"github.com/oggyb/venue-match/internal/notify"
	"github.com/oggyb/venue-match/internal/repository"
	"github.com/oggyb/venue-match/internal/service/profile"
)

// Status is the terminal state of one submission.
type Status string

const (
	StatusIgnored          Status = "ignored"           // self-signal
	StatusDuplicate        Status = "duplicate"         // identical in-flight insert lost the race
	StatusSent             Status = "sent"              // one-sided interest
	StatusMatched          Status = "matched"           // this submission created the connection
	StatusAlreadyConnected Status = "already_connected" // mutual, but the pair was already matched
)

// Outcome describes what a submission did.
type Outcome struct {
	Status     Status
	Signal     *db.Signal
	Connection *db.Connection
}

// SignalReceivedPayload is sent to the receiver of a one-sided signal.
type SignalReceivedPayload struct {
	Sender profile.Snapshot `json:"sender"`
	SentAt time.Time        `json:"sentAt"`
}

// NewConnectionPayload is sent to each side of a new match, carrying the
// other side's card.
type NewConnectionPayload struct {
	ConnectionID string           `json:"connectionId"`
	CreatedAt    time.Time        `json:"createdAt"`
	Partner      profile.Snapshot `json:"partner"`
}

var errDuplicateSignal = errors.New("duplicate signal")

// Service turns directional interest into connections.
type Service struct {
	appCtx   *app.AppContext
	profiles *repository.ProfileRepository
	signals  *repository.SignalRepository
	conns    *repository.ConnectionRepository
	blocks   *repository.BlockRepository
	now      func() time.Time
}

// NewSignalService creates the signal state machine with dependencies from AppContext.
func NewSignalService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		profiles: repository.NewProfileRepository(appCtx.DB),
		signals:  repository.NewSignalRepository(appCtx.DB),
		conns:    repository.NewConnectionRepository(appCtx.DB),
		blocks:   repository.NewBlockRepository(appCtx.DB),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// SubmitSignal records sender's interest in receiver.
//
// Behavior:
//   - sender == receiver → StatusIgnored, no error.
//   - Gates run in order inside the transaction: verification (PENDING users
//     spend the provisional quota), then the free-tier rolling 24h limit
//     (extra credits are spent before rejecting), then blocks in either
//     direction. A rejection rolls back every gate mutation, so nothing is
//     persisted.
//   - A reverse signal makes the pair mutual; the connection is created in
//     the same transaction unless it already exists.
//   - Emissions, badges, cache sweeps and pushes run only after commit.
//
// The whole transaction holds a Redis lock on the pair so two instances
// cannot each miss the other's uncommitted signal. The unique pair index
// on connections still has the final word.
func (s *Service) SubmitSignal(ctx context.Context, senderID, receiverID string) (Outcome, error) {
	log := s.appCtx.Logger.With().Str("sender", senderID).Str("receiver", receiverID).Logger()
	log.Debug().Msg("SubmitSignal called")

	if receiverID == "" {
		return Outcome{}, svcErr.InvalidArgument("receiverId is required")
	}
	if senderID == receiverID {
		s.count(StatusIgnored)
		return Outcome{Status: StatusIgnored}, nil
	}

	sender, err := s.profiles.GetUser(ctx, senderID)
	if errors.Is(err, repository.ErrNotFound) {
		return Outcome{}, svcErr.NotFound("sender profile not found")
	}
	if err != nil {
		log.Error().Err(err).Msg("load sender failed")
		return Outcome{}, err
	}
	receiver, err := s.profiles.GetUser(ctx, receiverID)
	if errors.Is(err, repository.ErrNotFound) {
		return Outcome{}, svcErr.NotFound("user not found")
	}
	if err != nil {
		log.Error().Err(err).Msg("load receiver failed")
		return Outcome{}, err
	}

	lockTTL := s.appCtx.Config.Cache.PairLockTTL
	release, err := s.appCtx.RedisCache.AcquireLock(ctx, cache.PairLockKey(senderID, receiverID), lockTTL, lockTTL)
	if err != nil {
		log.Error().Err(err).Msg("pair lock failed")
		return Outcome{}, err
	}

	now := s.now()
	out, err := s.transact(ctx, sender, receiverID, now)
	release()
	if err != nil {
		if svcErr.IsPolicy(err) {
			metrics.SignalsTotal.WithLabelValues("rejected").Inc()
			log.Debug().Str("code", string(svcErr.CodeOf(err))).Msg("signal rejected")
			return Outcome{}, err
		}
		log.Error().Err(err).Msg("signal transaction failed")
		return Outcome{}, err
	}

	s.count(out.Status)
	log.Debug().Str("status", string(out.Status)).Msg("SubmitSignal result")

	// effects must not be cut short by the caller going away
	s.applyEffects(context.WithoutCancel(ctx), out, sender, receiver, now)
	return out, nil
}

// transact is the all-or-nothing core. Only tx-bound repositories are used
// inside the callback.
func (s *Service) transact(ctx context.Context, sender *db.User, receiverID string, now time.Time) (Outcome, error) {
	var out Outcome
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profiles := s.profiles.WithTx(tx)
		signals := s.signals.WithTx(tx)
		conns := s.conns.WithTx(tx)

		if err := s.checkVerification(ctx, profiles, sender.Profile); err != nil {
			return err
		}
		if err := s.checkDailyLimit(ctx, profiles, signals, sender, now); err != nil {
			return err
		}
		blocked, err := s.blocks.WithTx(tx).IsBlocked(ctx, sender.ID, receiverID)
		if err != nil {
			return err
		}
		if blocked {
			return svcErr.Forbidden("you can no longer interact with this user")
		}

		sig, err := signals.Create(ctx, sender.ID, receiverID, now)
		if errors.Is(err, repository.ErrAlreadyExists) {
			return errDuplicateSignal
		}
		if err != nil {
			return err
		}
		out.Signal = sig

		mutual, err := signals.Exists(ctx, receiverID, sender.ID)
		if err != nil {
			return err
		}
		if !mutual {
			out.Status = StatusSent
			return nil
		}

		_, err = conns.FindByPair(ctx, sender.ID, receiverID)
		switch {
		case err == nil:
			out.Status = StatusAlreadyConnected
			return nil
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		conn, err := conns.Create(ctx, sender.ID, receiverID)
		if errors.Is(err, repository.ErrAlreadyExists) {
			out.Status = StatusAlreadyConnected
			return nil
		}
		if err != nil {
			return err
		}
		out.Status = StatusMatched
		out.Connection = conn
		return nil
	})
	if errors.Is(err, errDuplicateSignal) {
		return Outcome{Status: StatusDuplicate}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func (s *Service) checkVerification(ctx context.Context, profiles *repository.ProfileRepository, p *db.Profile) error {
	if p.IsVerified() {
		return nil
	}
	if p.VerificationStatus != db.VerificationPending {
		return svcErr.Policy(svcErr.CodeVerificationRequired, "verify your profile to send signals")
	}

	ok, err := profiles.ClaimProvisionalSignal(ctx, p.ID, s.appCtx.Config.Matching.ProvisionalSignalQuota)
	if err != nil {
		return err
	}
	if !ok {
		return svcErr.Policy(svcErr.CodeVerificationRequired, "your verification is pending; no provisional signals left")
	}
	return nil
}

func (s *Service) checkDailyLimit(ctx context.Context, profiles *repository.ProfileRepository, signals *repository.SignalRepository, sender *db.User, now time.Time) error {
	if !sender.IsFreeTier(now) {
		return nil
	}

	sent, err := signals.CountSentSince(ctx, sender.ID, now.Add(-24*time.Hour))
	if err != nil {
		return err
	}
	if sent < int64(s.appCtx.Config.Matching.DailySignalLimit) {
		return nil
	}

	spent, err := profiles.ConsumeSignalCredit(ctx, sender.Profile.ID)
	if err != nil {
		return err
	}
	if !spent {
		return svcErr.Policy(svcErr.CodeSignalLimitReached, "daily signal limit reached")
	}
	return nil
}

func (s *Service) applyEffects(ctx context.Context, out Outcome, sender, receiver *db.User, now time.Time) {
	switch out.Status {
	case StatusSent:
		s.announceSignal(ctx, sender, receiver, now)
	case StatusMatched:
		s.announceMatch(ctx, out.Connection, sender, receiver, now)
	}
}

func (s *Service) announceSignal(ctx context.Context, sender, receiver *db.User, now time.Time) {
	log := s.appCtx.Logger

	payload := SignalReceivedPayload{Sender: profile.FromUser(sender, now), SentAt: now}
	if err := s.appCtx.Emitter.EmitToRoom(ctx, broadcast.PersonalRoom(receiver.ID), broadcast.EventSignalReceived, payload); err != nil {
		log.Warn().Err(err).Str("user", receiver.ID).Msg("emit signal_received failed")
	}

	err := s.appCtx.Notifier.Notify(ctx, notify.Push{
		UserID: receiver.ID,
		Kind:   notify.KindSignalReceived,
		Title:  "Someone noticed you",
		Body:   sender.Profile.Name + " sent you a signal",
		Data:   map[string]string{"senderId": sender.ID},
		SentAt: now,
	})
	if err != nil {
		log.Warn().Err(err).Str("user", receiver.ID).Msg("signal push failed")
	}
}

func (s *Service) announceMatch(ctx context.Context, conn *db.Connection, sender, receiver *db.User, now time.Time) {
	log := s.appCtx.Logger
	metrics.MatchesTotal.Inc()

	sides := []struct{ self, partner *db.User }{
		{sender, receiver},
		{receiver, sender},
	}
	for _, side := range sides {
		payload := NewConnectionPayload{
			ConnectionID: conn.ID,
			CreatedAt:    conn.CreatedAt,
			Partner:      profile.FromUser(side.partner, now),
		}
		if err := s.appCtx.Emitter.EmitToRoom(ctx, broadcast.PersonalRoom(side.self.ID), broadcast.EventNewConnection, payload); err != nil {
			log.Warn().Err(err).Str("user", side.self.ID).Msg("emit new_connection failed")
		}
	}

	for _, side := range sides {
		userID := side.self.ID
		if err := s.appCtx.Badges.Evaluate(ctx, userID, notify.TriggerNewMatch); err != nil {
			log.Warn().Err(err).Str("user", userID).Msg("badge evaluation failed")
		}
		if _, err := s.appCtx.RedisCache.Invalidate(ctx, cache.ConnectionsPrefix(userID)); err != nil {
			log.Warn().Err(err).Str("user", userID).Msg("connection cache sweep failed")
		}
		err := s.appCtx.Notifier.Notify(ctx, notify.Push{
			UserID: userID,
			Kind:   notify.KindNewConnection,
			Title:  "It's a match!",
			Body:   "You and " + side.partner.Profile.Name + " are now connected",
			Data:   map[string]string{"connectionId": conn.ID},
			SentAt: now,
		})
		if err != nil {
			log.Warn().Err(err).Str("user", userID).Msg("match push failed")
		}
	}
}

func (s *Service) count(st Status) {
	metrics.SignalsTotal.WithLabelValues(string(st)).Inc()
}
