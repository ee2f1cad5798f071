package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/oggyb/venue-match/internal/broadcast"
	"github.com/oggyb/venue-match/internal/metrics"
)

// Hub tracks the sockets connected to this instance and the rooms they are
// in. It is the local delivery end of every room emission.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[broadcast.Room]map[*Client]struct{}
	clients map[*Client]map[broadcast.Room]struct{}
	log     zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms:   make(map[broadcast.Room]map[*Client]struct{}),
		clients: make(map[*Client]map[broadcast.Room]struct{}),
		log:     log,
	}
}

// Register adds a client and joins it to its personal room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = make(map[broadcast.Room]struct{})
	h.joinLocked(c, broadcast.PersonalRoom(c.UserID()))
	h.mu.Unlock()

	metrics.SocketsConnected.Inc()
	h.log.Debug().Str("user", c.UserID()).Msg("socket registered")
}

// Unregister removes the client from every room. It reports false when the
// client was not registered.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	rooms, ok := h.clients[c]
	if !ok {
		h.mu.Unlock()
		return false
	}
	for r := range rooms {
		h.leaveLocked(c, r)
	}
	delete(h.clients, c)
	h.mu.Unlock()

	metrics.SocketsConnected.Dec()
	h.log.Debug().Str("user", c.UserID()).Msg("socket unregistered")
	return true
}

// venueHeldElsewhere reports whether another local socket of c's user still
// holds venueID as its venue session.
func (h *Hub) venueHeldElsewhere(c *Client, venueID string) bool {
	h.mu.RLock()
	peers := make([]*Client, 0, len(h.rooms[broadcast.PersonalRoom(c.UserID())]))
	for other := range h.rooms[broadcast.PersonalRoom(c.UserID())] {
		if other != c {
			peers = append(peers, other)
		}
	}
	h.mu.RUnlock()

	for _, other := range peers {
		if vs, ok := other.VenueSession(); ok && vs.VenueID == venueID {
			return true
		}
	}
	return false
}

func (h *Hub) Join(c *Client, room broadcast.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.joinLocked(c, room)
}

func (h *Hub) Leave(c *Client, room broadcast.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) joinLocked(c *Client, room broadcast.Room) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	h.clients[c][room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room broadcast.Room) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.clients[c]; ok {
		delete(rooms, room)
	}
}

func (h *Hub) inRoom(c *Client, room broadcast.Room) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][c]
	return ok
}

func (h *Hub) roomSize(room broadcast.Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Deliver queues an encoded frame on every local socket in room and returns
// how many sockets accepted it.
func (h *Hub) Deliver(room broadcast.Room, frame []byte) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

// EmitToRoom delivers to local sockets only. Used when cross-instance
// fan-out is disabled.
func (h *Hub) EmitToRoom(_ context.Context, room broadcast.Room, event string, payload any) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	metrics.FanoutDeliveries.Add(float64(h.Deliver(room, frame)))
	return nil
}

// Shutdown closes every socket.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		c.Close(ReasonShutdown, nil)
	}
}
