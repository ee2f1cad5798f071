package testutil

import (
	"context"
	"sync"

	"github.com/oggyb/venue-match/internal/broadcast"
	"github.com/oggyb/venue-match/internal/notify"
)

// Emission is one recorded outbound event.
type Emission struct {
	Room    broadcast.Room
	Event   string
	Payload any
}

// RecordingEmitter captures room emissions.
type RecordingEmitter struct {
	mu        sync.Mutex
	emissions []Emission
}

func (e *RecordingEmitter) EmitToRoom(_ context.Context, room broadcast.Room, event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emissions = append(e.emissions, Emission{Room: room, Event: event, Payload: payload})
	return nil
}

func (e *RecordingEmitter) All() []Emission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Emission(nil), e.emissions...)
}

// Find returns the emissions of event to room.
func (e *RecordingEmitter) Find(room broadcast.Room, event string) []Emission {
	var out []Emission
	for _, em := range e.All() {
		if em.Room == room && em.Event == event {
			out = append(out, em)
		}
	}
	return out
}

// Events returns every emission of event regardless of room.
func (e *RecordingEmitter) Events(event string) []Emission {
	var out []Emission
	for _, em := range e.All() {
		if em.Event == event {
			out = append(out, em)
		}
	}
	return out
}

func (e *RecordingEmitter) Reset() {
	e.mu.Lock()
	e.emissions = nil
	e.mu.Unlock()
}

// RecordingSocket is an in-memory broadcast.Socket.
type RecordingSocket struct {
	mu      sync.Mutex
	userID  string
	emitted []Emission
	rooms   map[broadcast.Room]struct{}
	session *broadcast.VenueSession
}

func NewSocket(userID string) *RecordingSocket {
	return &RecordingSocket{
		userID: userID,
		rooms:  map[broadcast.Room]struct{}{broadcast.PersonalRoom(userID): {}},
	}
}

func (s *RecordingSocket) UserID() string { return s.userID }

func (s *RecordingSocket) Emit(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitted = append(s.emitted, Emission{Event: event, Payload: payload})
}

func (s *RecordingSocket) Join(room broadcast.Room) {
	s.mu.Lock()
	s.rooms[room] = struct{}{}
	s.mu.Unlock()
}

func (s *RecordingSocket) Leave(room broadcast.Room) {
	s.mu.Lock()
	delete(s.rooms, room)
	s.mu.Unlock()
}

func (s *RecordingSocket) InRoom(room broadcast.Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[room]
	return ok
}

func (s *RecordingSocket) VenueSession() (broadcast.VenueSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return broadcast.VenueSession{}, false
	}
	return *s.session, true
}

func (s *RecordingSocket) SetVenueSession(vs *broadcast.VenueSession) {
	s.mu.Lock()
	s.session = vs
	s.mu.Unlock()
}

// Emitted returns events sent to this socket only.
func (s *RecordingSocket) Emitted(event string) []Emission {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Emission
	for _, em := range s.emitted {
		if em.Event == event {
			out = append(out, em)
		}
	}
	return out
}

// RecordingNotifier captures push notifications.
type RecordingNotifier struct {
	mu     sync.Mutex
	pushes []notify.Push
}

func (n *RecordingNotifier) Notify(_ context.Context, p notify.Push) error {
	n.mu.Lock()
	n.pushes = append(n.pushes, p)
	n.mu.Unlock()
	return nil
}

// For returns pushes addressed to userID.
func (n *RecordingNotifier) For(userID string) []notify.Push {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Push
	for _, p := range n.pushes {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

// BadgeCall is one recorded badge evaluation.
type BadgeCall struct {
	UserID  string
	Trigger string
}

// RecordingBadges captures badge triggers.
type RecordingBadges struct {
	mu    sync.Mutex
	calls []BadgeCall
}

func (b *RecordingBadges) Evaluate(_ context.Context, userID, trigger string) error {
	b.mu.Lock()
	b.calls = append(b.calls, BadgeCall{UserID: userID, Trigger: trigger})
	b.mu.Unlock()
	return nil
}

func (b *RecordingBadges) Calls() []BadgeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BadgeCall(nil), b.calls...)
}
