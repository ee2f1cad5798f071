package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/venue-match/internal/broadcast"
)

func newTestClient(h *Hub, userID string, buffer int) *Client {
	c := NewClient(h, nil, userID, Limits{EventsPerSecond: 100, EventBurst: 100, SendBuffer: buffer}, zerolog.Nop())
	h.Register(c)
	return c
}

func next(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case raw := <-c.send:
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
		return Frame{}
	}
}

func TestHubPersonalRoomAndDelivery(t *testing.T) {
	h := NewHub(zerolog.Nop())
	a := newTestClient(h, "a", 8)
	b := newTestClient(h, "b", 8)

	assert.True(t, h.inRoom(a, broadcast.PersonalRoom("a")))
	assert.False(t, h.inRoom(a, broadcast.PersonalRoom("b")))

	room := broadcast.VenueRoom("v1")
	a.Join(room)
	b.Join(room)
	assert.Equal(t, 2, h.roomSize(room))

	require.NoError(t, h.EmitToRoom(context.Background(), room, broadcast.EventUserLeft, map[string]string{"userId": "x"}))
	assert.Equal(t, broadcast.EventUserLeft, next(t, a).Event)
	assert.Equal(t, broadcast.EventUserLeft, next(t, b).Event)

	b.Leave(room)
	assert.Equal(t, 1, h.Deliver(room, []byte(`{}`)))
}

func TestHubUnregister(t *testing.T) {
	h := NewHub(zerolog.Nop())
	first := newTestClient(h, "a", 8)
	second := newTestClient(h, "a", 8)
	first.Join(broadcast.VenueRoom("v1"))

	assert.True(t, h.Unregister(first))
	assert.Zero(t, h.roomSize(broadcast.VenueRoom("v1")))
	assert.Equal(t, 1, h.roomSize(broadcast.PersonalRoom("a")))
	assert.True(t, h.Unregister(second))
	assert.False(t, h.Unregister(second))

	// joins after unregister are ignored
	second.Join(broadcast.VenueRoom("v2"))
	assert.Zero(t, h.roomSize(broadcast.VenueRoom("v2")))
}

func TestVenueHeldElsewhere(t *testing.T) {
	h := NewHub(zerolog.Nop())
	first := newTestClient(h, "a", 8)
	second := newTestClient(h, "a", 8)
	other := newTestClient(h, "b", 8)

	v1 := broadcast.NewVenueSession("v1")
	first.SetVenueSession(&v1)
	other.SetVenueSession(&v1)

	assert.False(t, h.venueHeldElsewhere(first, "v1"), "another user's socket does not count")

	second.SetVenueSession(&v1)
	assert.True(t, h.venueHeldElsewhere(first, "v1"))
	assert.False(t, h.venueHeldElsewhere(first, "v2"))

	h.Unregister(second)
	assert.False(t, h.venueHeldElsewhere(first, "v1"))
}

func TestSlowClientIsDropped(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := newTestClient(h, "a", 1)

	assert.Equal(t, 1, h.Deliver(broadcast.PersonalRoom("a"), []byte(`{}`)))
	assert.Equal(t, 0, h.Deliver(broadcast.PersonalRoom("a"), []byte(`{}`)))

	select {
	case <-c.Done():
	default:
		t.Fatal("client should be closed after its buffer filled")
	}
	assert.False(t, c.enqueue([]byte(`{}`)))
}

func TestClientSocketView(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := newTestClient(h, "a", 8)

	_, ok := c.VenueSession()
	assert.False(t, ok)

	vs := broadcast.NewVenueSession("v1")
	c.SetVenueSession(&vs)
	got, ok := c.VenueSession()
	require.True(t, ok)
	assert.Equal(t, "v1", got.VenueID)

	c.Emit(broadcast.EventCompassUpdate, []string{})
	assert.Equal(t, broadcast.EventCompassUpdate, next(t, c).Event)
}
