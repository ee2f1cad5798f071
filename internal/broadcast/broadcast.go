// Package broadcast defines the room taxonomy and the emission interfaces
// shared by the services and the realtime transport.
package broadcast

import "context"

// Room is a logical fan-out channel.
type Room string

const (
	venuePrefix     = "venue-"
	groupChatPrefix = "group-chat-"
)

// PersonalRoom is the user's own id; it reaches every socket of the user
// regardless of the venue they are in.
func PersonalRoom(userID string) Room { return Room(userID) }

// VenueRoom carries presence and compass traffic.
func VenueRoom(venueID string) Room { return Room(venuePrefix + venueID) }

// GroupChatRoom carries venue group chat traffic only.
func GroupChatRoom(venueID string) Room { return Room(groupChatPrefix + venueID) }

// VenueSession owns both rooms of a venue so they are always joined and
// left together.
type VenueSession struct {
	VenueID   string
	Presence  Room
	GroupChat Room
}

func NewVenueSession(venueID string) VenueSession {
	return VenueSession{
		VenueID:   venueID,
		Presence:  VenueRoom(venueID),
		GroupChat: GroupChatRoom(venueID),
	}
}

// Rooms lists the rooms in join order.
func (s VenueSession) Rooms() []Room { return []Room{s.Presence, s.GroupChat} }

// Outbound event names.
const (
	EventCompassUpdate            = "compass_update"
	EventUserJoined               = "user_joined"
	EventUserLeft                 = "user_left"
	EventSignalReceived           = "signal_received"
	EventNewConnection            = "new_connection"
	EventReceiveMessage           = "receive_message"
	EventReceiveVenueGroupMessage = "receive_venue_group_message"
	EventUserIsTyping             = "user_is_typing"
	EventUserStoppedTyping        = "user_stopped_typing"
	EventUserIsTypingInGroup      = "user_is_typing_in_group"
	EventUserStoppedTypingInGroup = "user_stopped_typing_in_group"
	EventMessagesWereRead         = "messages_were_read"
	EventUpdateGroupReactions     = "update_group_reactions"
	EventError                    = "error"
)

// Emitter delivers an event to every socket currently in a room, on any
// instance.
type Emitter interface {
	EmitToRoom(ctx context.Context, room Room, event string, payload any) error
}

// Socket is the originating connection of an inbound event.
type Socket interface {
	UserID() string
	// Emit sends to this socket only.
	Emit(event string, payload any)
	Join(room Room)
	Leave(room Room)
	// VenueSession returns the venue the socket currently occupies.
	VenueSession() (VenueSession, bool)
	SetVenueSession(s *VenueSession)
}
