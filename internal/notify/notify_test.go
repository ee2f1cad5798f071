package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic, key string
	event      any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingPublisher) Publish(_ context.Context, topic, key string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{topic, key, event})
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestPushNotifierKeysByUser(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewPushNotifier(pub, "push")

	require.NoError(t, n.Notify(context.Background(), Push{UserID: "u1", Kind: KindNewMessage, Body: "hi"}))

	require.Len(t, pub.events, 1)
	assert.Equal(t, "push", pub.events[0].topic)
	assert.Equal(t, "u1", pub.events[0].key)
	p := pub.events[0].event.(Push)
	assert.False(t, p.SentAt.IsZero())
}

func TestBadgeTriggerPublishesTrigger(t *testing.T) {
	pub := &recordingPublisher{}
	b := NewBadgeTrigger(pub, "badges")

	require.NoError(t, b.Evaluate(context.Background(), "u2", TriggerNewMatch))

	require.Len(t, pub.events, 1)
	ev := pub.events[0].event.(badgeEvent)
	assert.Equal(t, "u2", ev.UserID)
	assert.Equal(t, TriggerNewMatch, ev.Trigger)
}

func TestLogPublisherNeverFails(t *testing.T) {
	p := NewLogPublisher(zerolog.Nop())
	assert.NoError(t, p.Publish(context.Background(), "t", "k", map[string]string{"a": "b"}))
	assert.NoError(t, p.Close())
}
