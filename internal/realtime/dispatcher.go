package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/oggyb/venue-match/internal/broadcast"
	svcErr "github.com/oggyb/venue-match/internal/errors"
	"github.com/oggyb/venue-match/internal/metrics"
	"github.com/oggyb/venue-match/internal/service/chat"
	"github.com/oggyb/venue-match/internal/service/compass"
	"github.com/oggyb/venue-match/internal/service/signal"
)

// SignalSubmitter is the signal state machine.
type SignalSubmitter interface {
	SubmitSignal(ctx context.Context, senderID, receiverID string) (signal.Outcome, error)
}

// VenueJoiner runs the venue join protocol.
type VenueJoiner interface {
	JoinVenue(ctx context.Context, sock broadcast.Socket, venueID string, filters compass.Filters) ([]compass.Entry, error)
	Disconnect(ctx context.Context, userID, venueID string) error
}

// ChatSender delivers chat traffic.
type ChatSender interface {
	SendMessage(ctx context.Context, senderID string, in chat.PrivateMessage) (*chat.MessageView, error)
	SendGroupMessage(ctx context.Context, sock broadcast.Socket, in chat.GroupMessage) (*chat.GroupMessageView, error)
	Typing(ctx context.Context, userID, connectionID string, typing bool) error
	GroupTyping(ctx context.Context, sock broadcast.Socket, venueID string, typing bool) error
	MarkAsRead(ctx context.Context, readerID, connectionID string) (int64, error)
	React(ctx context.Context, sock broadcast.Socket, venueID string, messageID int64, emoji string) (*chat.ReactionsPayload, error)
}

// Dispatcher routes inbound events to the services. Every failure becomes an
// error event on the originating socket.
type Dispatcher struct {
	signals SignalSubmitter
	venues  VenueJoiner
	chat    ChatSender
	log     zerolog.Logger
}

func NewDispatcher(signals SignalSubmitter, venues VenueJoiner, chat ChatSender, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{signals: signals, venues: venues, chat: chat, log: log}
}

// Handle processes one raw inbound frame.
func (d *Dispatcher) Handle(ctx context.Context, sock broadcast.Socket, raw []byte) {
	kind := "unknown"
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("user", sock.UserID()).Str("event", kind).
				Interface("panic", r).Msg("event handler panicked")
			metrics.EventsTotal.WithLabelValues(kind, "error").Inc()
			sock.Emit(broadcast.EventError, svcErr.Payload(fmt.Errorf("panic: %v", r)))
		}
	}()

	env, err := Decode(raw)
	if err != nil {
		metrics.EventsTotal.WithLabelValues(kind, "malformed").Inc()
		sock.Emit(broadcast.EventError, svcErr.Payload(err))
		return
	}
	kind = string(env.Event)

	err = d.route(ctx, sock, env)
	outcome := "ok"
	switch {
	case err == nil:
	case svcErr.IsPolicy(err):
		outcome = "policy"
	default:
		outcome = "error"
		if !errors.Is(err, context.Canceled) {
			d.log.Error().Err(err).Str("user", sock.UserID()).Str("event", kind).Msg("event failed")
		}
	}
	metrics.EventsTotal.WithLabelValues(kind, outcome).Inc()
	if err != nil {
		sock.Emit(broadcast.EventError, svcErr.Payload(err))
	}
}

func (d *Dispatcher) route(ctx context.Context, sock broadcast.Socket, env Envelope) error {
	userID := sock.UserID()

	switch env.Event {
	case EventJoinVenue:
		var p JoinVenuePayload
		if err := Bind(env.Data, &p); err != nil {
			return err
		}
		_, err := d.venues.JoinVenue(ctx, sock, p.VenueID, p.CompassFilters())
		return err

	case EventSendSignal:
		var p SendSignalPayload
		if err := Bind(env.Data, &p); err != nil {
			return err
		}
		_, err := d.signals.SubmitSignal(ctx, userID, p.ReceiverID)
		return err

	case EventSendMessage:
		var p SendMessagePayload
		if err := Bind(env.Data, &p); err != nil {
			return err
		}
		_, err := d.chat.SendMessage(ctx, userID, p.Message())
		return err

	case EventSendVenueGroupMessage:
		var p GroupMessagePayload
		if err := Bind(env.Data, &p); err != nil {
			return err
		}
		_, err := d.chat.SendGroupMessage(ctx, sock, p.Message())
		return err

	case EventStartTyping, EventStopTyping:
		var p ConnectionRef
		if err := Bind(env.Data, &p); err != nil {
			return err
		}
		return d.chat.Typing(ctx, userID, p.ConnectionID, env.Event == EventStartTyping)

	case EventStartGroupTyping, EventStopGroupTyping:
		var p VenueRef
		if err := Bind(env.Data, &p); err != nil {
			return err
		}
		return d.chat.GroupTyping(ctx, sock, p.VenueID, env.Event == EventStartGroupTyping)

	case EventMarkAsRead:
		var p ConnectionRef
		if err := Bind(env.Data, &p); err != nil {
			return err
		}
		_, err := d.chat.MarkAsRead(ctx, userID, p.ConnectionID)
		return err

	case EventSendGroupReaction:
		var p GroupReactionPayload
		if err := Bind(env.Data, &p); err != nil {
			return err
		}
		_, err := d.chat.React(ctx, sock, p.VenueID, p.ID(), p.ReactionEmoji)
		return err
	}
	return svcErr.InvalidArgument("unsupported event")
}

// Disconnect runs the venue leave protocol after the socket holding venueID
// closed.
func (d *Dispatcher) Disconnect(ctx context.Context, userID, venueID string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("user", userID).Interface("panic", r).Msg("disconnect panicked")
		}
	}()
	if err := d.venues.Disconnect(ctx, userID, venueID); err != nil {
		d.log.Warn().Err(err).Str("user", userID).Str("venue", venueID).Msg("disconnect cleanup failed")
	}
}
