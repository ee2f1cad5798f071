package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oggyb/venue-match/internal/broadcast"
	"github.com/oggyb/venue-match/internal/metrics"
)

type fanoutMessage struct {
	Room  broadcast.Room  `json:"room"`
	Frame json.RawMessage `json:"frame"`
}

// Fanout publishes room emissions on a Redis channel so every instance,
// including this one, delivers them to its local sockets.
type Fanout struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	log     zerolog.Logger
	ready   chan struct{}
}

func NewFanout(rdb *redis.Client, channel string, hub *Hub, log zerolog.Logger) *Fanout {
	return &Fanout{
		rdb:     rdb,
		channel: channel,
		hub:     hub,
		log:     log.With().Str("component", "fanout").Logger(),
		ready:   make(chan struct{}),
	}
}

// EmitToRoom implements broadcast.Emitter.
func (f *Fanout) EmitToRoom(ctx context.Context, room broadcast.Room, event string, payload any) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(fanoutMessage{Room: room, Frame: frame})
	if err != nil {
		return err
	}
	if err := f.rdb.Publish(ctx, f.channel, msg).Err(); err != nil {
		return fmt.Errorf("fanout publish: %w", err)
	}
	return nil
}

// Ready is closed once the subscription is confirmed.
func (f *Fanout) Ready() <-chan struct{} { return f.ready }

// Start runs the subscription in the background and waits until Redis
// confirms it. The returned channel yields Run's result once it stops.
func (f *Fanout) Start(ctx context.Context, timeout time.Duration) (<-chan error, error) {
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	select {
	case <-f.ready:
		return done, nil
	case err := <-done:
		if err == nil {
			err = errors.New("fanout stopped before subscribing")
		}
		return nil, err
	case <-time.After(timeout):
		return nil, fmt.Errorf("fanout subscribe: not confirmed within %s", timeout)
	}
}

// Run subscribes to the channel and delivers into the local hub until ctx
// is cancelled.
func (f *Fanout) Run(ctx context.Context) error {
	sub := f.rdb.Subscribe(ctx, f.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("fanout subscribe: %w", err)
	}
	close(f.ready)
	f.log.Info().Str("channel", f.channel).Msg("fanout subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var fm fanoutMessage
			if err := json.Unmarshal([]byte(m.Payload), &fm); err != nil {
				f.log.Warn().Err(err).Msg("dropping malformed fanout message")
				continue
			}
			n := f.hub.Deliver(fm.Room, fm.Frame)
			metrics.FanoutDeliveries.Add(float64(n))
		}
	}
}
