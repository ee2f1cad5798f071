// Package realtime is the WebSocket transport: authenticated clients, a local
// room hub, cross-instance fan-out over Redis and the inbound event
// dispatcher.
package realtime

import (
	"encoding/json"
	"fmt"
	"strings"

	svcErr "github.com/oggyb/venue-match/internal/errors"
	"github.com/oggyb/venue-match/internal/service/chat"
	"github.com/oggyb/venue-match/internal/service/compass"
)

// EventKind is the closed set of inbound events.
type EventKind string

const (
	EventJoinVenue             EventKind = "join_venue"
	EventSendSignal            EventKind = "send_signal"
	EventSendMessage           EventKind = "send_message"
	EventSendVenueGroupMessage EventKind = "send_venue_group_message"
	EventStartTyping           EventKind = "start_typing"
	EventStopTyping            EventKind = "stop_typing"
	EventStartGroupTyping      EventKind = "start_group_typing"
	EventStopGroupTyping       EventKind = "stop_group_typing"
	EventMarkAsRead            EventKind = "mark_as_read"
	EventSendGroupReaction     EventKind = "send_group_reaction"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventJoinVenue, EventSendSignal, EventSendMessage, EventSendVenueGroupMessage,
		EventStartTyping, EventStopTyping, EventStartGroupTyping, EventStopGroupTyping,
		EventMarkAsRead, EventSendGroupReaction:
		return true
	}
	return false
}

// Envelope is the inbound wire frame.
type Envelope struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Frame is the outbound wire frame.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Decode parses an inbound frame. Unknown events are rejected here so the
// dispatcher switch only sees valid kinds.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, svcErr.InvalidArgument("malformed event")
	}
	if !env.Event.Valid() {
		return Envelope{}, svcErr.InvalidArgument(fmt.Sprintf("unknown event %q", env.Event))
	}
	return env, nil
}

// Bind decodes an event body into p and validates it.
func Bind[P interface{ Validate() error }](data json.RawMessage, p P) error {
	if len(data) == 0 || string(data) == "null" {
		return p.Validate()
	}
	if err := json.Unmarshal(data, p); err != nil {
		return svcErr.InvalidArgument("malformed event data")
	}
	return p.Validate()
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Data: payload})
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return svcErr.InvalidArgument(field + " is required")
	}
	return nil
}

type FiltersPayload struct {
	MinAge      int      `json:"minAge"`
	MaxAge      int      `json:"maxAge"`
	InterestIDs []uint64 `json:"interestIds"`
}

type JoinVenuePayload struct {
	VenueID string          `json:"venueId"`
	Filters *FiltersPayload `json:"filters,omitempty"`
}

func (p *JoinVenuePayload) Validate() error {
	if err := required("venueId", p.VenueID); err != nil {
		return err
	}
	if f := p.Filters; f != nil {
		if f.MinAge < 0 || f.MaxAge < 0 || (f.MaxAge > 0 && f.MinAge > f.MaxAge) {
			return svcErr.InvalidArgument("invalid age range")
		}
	}
	return nil
}

func (p *JoinVenuePayload) CompassFilters() compass.Filters {
	if p.Filters == nil {
		return compass.Filters{}
	}
	return compass.Filters{MinAge: p.Filters.MinAge, MaxAge: p.Filters.MaxAge, InterestIDs: p.Filters.InterestIDs}
}

type SendSignalPayload struct {
	ReceiverID string `json:"receiverId"`
}

func (p *SendSignalPayload) Validate() error { return required("receiverId", p.ReceiverID) }

type SendMessagePayload struct {
	ConnectionID string  `json:"connectionId"`
	Content      *string `json:"content,omitempty"`
	ImageURL     *string `json:"imageUrl,omitempty"`
	AudioURL     *string `json:"audioUrl,omitempty"`
}

func (p *SendMessagePayload) Validate() error { return required("connectionId", p.ConnectionID) }

func (p *SendMessagePayload) Message() chat.PrivateMessage {
	return chat.PrivateMessage{ConnectionID: p.ConnectionID, Content: p.Content, ImageURL: p.ImageURL, AudioURL: p.AudioURL}
}

type GroupMessagePayload struct {
	VenueID  string  `json:"venueId"`
	Content  *string `json:"content,omitempty"`
	ImageURL *string `json:"imageUrl,omitempty"`
	AudioURL *string `json:"audioUrl,omitempty"`
	VideoURL *string `json:"videoUrl,omitempty"`
}

func (p *GroupMessagePayload) Validate() error { return required("venueId", p.VenueID) }

func (p *GroupMessagePayload) Message() chat.GroupMessage {
	return chat.GroupMessage{VenueID: p.VenueID, Content: p.Content, ImageURL: p.ImageURL, AudioURL: p.AudioURL, VideoURL: p.VideoURL}
}

// ConnectionRef carries typing and read-receipt events.
type ConnectionRef struct {
	ConnectionID string `json:"connectionId"`
}

func (p *ConnectionRef) Validate() error { return required("connectionId", p.ConnectionID) }

// VenueRef carries group typing events.
type VenueRef struct {
	VenueID string `json:"venueId"`
}

func (p *VenueRef) Validate() error { return required("venueId", p.VenueID) }

// GroupReactionPayload accepts the message id as a JSON number or string.
type GroupReactionPayload struct {
	VenueID       string      `json:"venueId"`
	MessageID     json.Number `json:"messageId"`
	ReactionEmoji string      `json:"reactionEmoji"`
}

func (p *GroupReactionPayload) Validate() error {
	if err := required("venueId", p.VenueID); err != nil {
		return err
	}
	if err := required("reactionEmoji", p.ReactionEmoji); err != nil {
		return err
	}
	if id, err := p.MessageID.Int64(); err != nil || id <= 0 {
		return svcErr.InvalidArgument("messageId is required")
	}
	return nil
}

func (p *GroupReactionPayload) ID() int64 {
	id, _ := p.MessageID.Int64()
	return id
}
