package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/sync/singleflight"

	"github.com/oggyb/venue-match/internal/app"
	"github.com/oggyb/venue-match/internal/broadcast"
	"github.com/oggyb/venue-match/internal/cache"
	"github.com/oggyb/venue-match/internal/db"
	svcErr "github.com/oggyb/venue-match/internal/errors"
	"github.com/oggyb/venue-match/internal/metrics"
	"github.com/oggyb/venue-match/internal/moderation"
	"github.com/oggyb/venue-match/internal/notify"
	"github.com/oggyb/venue-match/internal/repository"
	"github.com/oggyb/venue-match/internal/utils/pagination"
)

const (
	previewRunes      = 100
	systemSenderID    = "system"
	moderationWarning = "Your message was not sent because it contains language that is not allowed here."
)

// PrivateMessage is the input of a private send.
type PrivateMessage struct {
	ConnectionID string
	Content      *string
	ImageURL     *string
	AudioURL     *string
}

// GroupMessage is the input of a venue group send.
type GroupMessage struct {
	VenueID  string
	Content  *string
	ImageURL *string
	AudioURL *string
	VideoURL *string
}

// MessageView is a private message as delivered to clients.
type MessageView struct {
	ID           int64      `json:"id,string"`
	ConnectionID string     `json:"connectionId"`
	SenderID     string     `json:"senderId"`
	Content      *string    `json:"content,omitempty"`
	ImageURL     *string    `json:"imageUrl,omitempty"`
	AudioURL     *string    `json:"audioUrl,omitempty"`
	ReadAt       *time.Time `json:"readAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// GroupMessageView is a venue group message as delivered to clients.
// IsSystem marks the synthetic moderation warning, which has no id.
type GroupMessageView struct {
	ID         int64     `json:"id,string"`
	VenueID    string    `json:"venueId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    *string   `json:"content,omitempty"`
	ImageURL   *string   `json:"imageUrl,omitempty"`
	AudioURL   *string   `json:"audioUrl,omitempty"`
	VideoURL   *string   `json:"videoUrl,omitempty"`
	IsSystem   bool      `json:"isSystem,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type TypingPayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

type GroupTypingPayload struct {
	VenueID string `json:"venueId"`
	UserID  string `json:"userId"`
	Name    string `json:"name"`
}

type ReadPayload struct {
	ConnectionID string `json:"connectionId"`
}

// ReactionSummary aggregates one emoji on a group message.
type ReactionSummary struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	UserIDs []string `json:"userIds"`
}

type ReactionsPayload struct {
	MessageID int64             `json:"messageId,string"`
	Reactions []ReactionSummary `json:"reactions"`
}

// HistoryPage is one page of private or group history, newest first.
type HistoryPage[T any] struct {
	Messages   []T    `json:"messages"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Service persists and delivers private and venue group chat.
type Service struct {
	appCtx   *app.AppContext
	messages *repository.MessageRepository
	conns    *repository.ConnectionRepository
	profiles *repository.ProfileRepository
	filter   *moderation.Filter
	node     *snowflake.Node
	group    singleflight.Group
	now      func() time.Time
}

// NewChatService creates the chat service with dependencies from AppContext.
func NewChatService(appCtx *app.AppContext, filter *moderation.Filter) *Service {
	node, err := snowflake.NewNode(appCtx.Config.App.NodeID)
	if err != nil {
		appCtx.Logger.Warn().Err(err).Int64("node", appCtx.Config.App.NodeID).Msg("invalid node id, using 0")
		node, _ = snowflake.NewNode(0)
	}
	return &Service{
		appCtx:   appCtx,
		messages: repository.NewMessageRepository(appCtx.DB),
		conns:    repository.NewConnectionRepository(appCtx.DB),
		profiles: repository.NewProfileRepository(appCtx.DB),
		filter:   filter,
		node:     node,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// SendMessage stores a private message and delivers it to both parties.
//
// Behavior:
//   - Sender must be verified → else VERIFICATION_REQUIRED.
//   - Sender must be a party to the connection → else FORBIDDEN.
//   - At least one of content/image/audio is required.
//   - After the write: history cache swept, receive_message to both personal
//     rooms, push to the receiver with a short summary.
func (s *Service) SendMessage(ctx context.Context, senderID string, in PrivateMessage) (*MessageView, error) {
	log := s.appCtx.Logger.With().Str("user", senderID).Str("connection", in.ConnectionID).Logger()
	log.Debug().Msg("SendMessage called")

	if in.ConnectionID == "" {
		return nil, svcErr.InvalidArgument("connectionId is required")
	}
	if isBlank(in.Content) && isBlank(in.ImageURL) && isBlank(in.AudioURL) {
		return nil, svcErr.InvalidArgument("a message needs text, an image or audio")
	}

	sender, err := s.profiles.GetUser(ctx, senderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, svcErr.NotFound("profile not found")
	}
	if err != nil {
		log.Error().Err(err).Msg("load sender failed")
		return nil, err
	}
	if !sender.Profile.IsVerified() {
		return nil, svcErr.Policy(svcErr.CodeVerificationRequired, "verify your profile to send messages")
	}

	conn, err := s.partyConnection(ctx, senderID, in.ConnectionID)
	if err != nil {
		return nil, err
	}

	m := &db.Message{
		ID:           s.node.Generate().Int64(),
		ConnectionID: conn.ID,
		SenderID:     senderID,
		Content:      nonBlank(in.Content),
		ImageURL:     nonBlank(in.ImageURL),
		AudioURL:     nonBlank(in.AudioURL),
		CreatedAt:    s.now(),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		log.Error().Err(err).Msg("store message failed")
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	s.sweep(ctx, cache.HistoryPrefix(conn.ID))

	view := toMessageView(m)
	receiverID := conn.Other(senderID)
	for _, id := range []string{senderID, receiverID} {
		if err := s.appCtx.Emitter.EmitToRoom(ctx, broadcast.PersonalRoom(id), broadcast.EventReceiveMessage, view); err != nil {
			log.Warn().Err(err).Str("to", id).Msg("emit receive_message failed")
		}
	}

	err = s.appCtx.Notifier.Notify(ctx, notify.Push{
		UserID: receiverID,
		Kind:   notify.KindNewMessage,
		Title:  sender.Profile.Name,
		Body:   summary(m),
		Data:   map[string]string{"connectionId": conn.ID},
		SentAt: m.CreatedAt,
	})
	if err != nil {
		log.Warn().Err(err).Msg("message push failed")
	}
	if err := s.appCtx.Badges.Evaluate(ctx, senderID, notify.TriggerNewMessage); err != nil {
		log.Warn().Err(err).Msg("badge evaluation failed")
	}
	return &view, nil
}

// SendGroupMessage screens, stores and broadcasts a venue group message.
//
// Behavior:
//   - The socket must currently be in the venue → else FORBIDDEN.
//   - Text hitting the word list is never stored or broadcast; the author
//     alone receives a synthetic system warning, which is also returned.
//   - Clean messages go to the venue's group-chat room.
func (s *Service) SendGroupMessage(ctx context.Context, sock broadcast.Socket, in GroupMessage) (*GroupMessageView, error) {
	senderID := sock.UserID()
	log := s.appCtx.Logger.With().Str("user", senderID).Str("venue", in.VenueID).Logger()
	log.Debug().Msg("SendGroupMessage called")

	if in.VenueID == "" {
		return nil, svcErr.InvalidArgument("venueId is required")
	}
	if isBlank(in.Content) && isBlank(in.ImageURL) && isBlank(in.AudioURL) && isBlank(in.VideoURL) {
		return nil, svcErr.InvalidArgument("a message needs text or media")
	}
	if err := requireVenue(sock, in.VenueID); err != nil {
		return nil, err
	}

	if in.Content != nil {
		if word, hit := s.filter.Check(*in.Content); hit {
			metrics.ModerationBlocked.Inc()
			log.Info().Str("word", word).Msg("group message blocked by moderation")

			warning := GroupMessageView{
				VenueID:    in.VenueID,
				SenderID:   systemSenderID,
				SenderName: "System",
				Content:    strPtr(moderationWarning),
				IsSystem:   true,
				CreatedAt:  s.now(),
			}
			sock.Emit(broadcast.EventReceiveVenueGroupMessage, warning)
			return &warning, nil
		}
	}

	sender, err := s.profiles.GetUser(ctx, senderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, svcErr.NotFound("profile not found")
	}
	if err != nil {
		log.Error().Err(err).Msg("load sender failed")
		return nil, err
	}

	m := &db.VenueGroupMessage{
		ID:        s.node.Generate().Int64(),
		VenueID:   in.VenueID,
		SenderID:  senderID,
		Content:   nonBlank(in.Content),
		ImageURL:  nonBlank(in.ImageURL),
		AudioURL:  nonBlank(in.AudioURL),
		VideoURL:  nonBlank(in.VideoURL),
		CreatedAt: s.now(),
	}
	if err := s.messages.CreateGroup(ctx, m); err != nil {
		log.Error().Err(err).Msg("store group message failed")
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	s.sweep(ctx, cache.GroupHistoryPrefix(in.VenueID))

	view := toGroupView(m, sender.Profile.Name)
	if err := s.appCtx.Emitter.EmitToRoom(ctx, broadcast.GroupChatRoom(in.VenueID), broadcast.EventReceiveVenueGroupMessage, view); err != nil {
		log.Warn().Err(err).Msg("emit group message failed")
	}
	return &view, nil
}

// Typing relays a private typing indicator to the counterpart's personal room.
func (s *Service) Typing(ctx context.Context, userID, connectionID string, typing bool) error {
	if connectionID == "" {
		return svcErr.InvalidArgument("connectionId is required")
	}
	conn, err := s.partyConnection(ctx, userID, connectionID)
	if err != nil {
		return err
	}

	event := broadcast.EventUserStoppedTyping
	if typing {
		event = broadcast.EventUserIsTyping
	}
	payload := TypingPayload{ConnectionID: conn.ID, UserID: userID}
	return s.appCtx.Emitter.EmitToRoom(ctx, broadcast.PersonalRoom(conn.Other(userID)), event, payload)
}

// GroupTyping relays a typing indicator to the venue's group-chat room.
func (s *Service) GroupTyping(ctx context.Context, sock broadcast.Socket, venueID string, typing bool) error {
	if venueID == "" {
		return svcErr.InvalidArgument("venueId is required")
	}
	if err := requireVenue(sock, venueID); err != nil {
		return err
	}
	user, err := s.profiles.GetUser(ctx, sock.UserID())
	if errors.Is(err, repository.ErrNotFound) {
		return svcErr.NotFound("profile not found")
	}
	if err != nil {
		return err
	}

	event := broadcast.EventUserStoppedTypingInGroup
	if typing {
		event = broadcast.EventUserIsTypingInGroup
	}
	payload := GroupTypingPayload{VenueID: venueID, UserID: user.ID, Name: user.Profile.Name}
	return s.appCtx.Emitter.EmitToRoom(ctx, broadcast.GroupChatRoom(venueID), event, payload)
}

// MarkAsRead stamps every message the reader received in the connection as
// read and tells the other party.
func (s *Service) MarkAsRead(ctx context.Context, readerID, connectionID string) (int64, error) {
	log := s.appCtx.Logger.With().Str("user", readerID).Str("connection", connectionID).Logger()
	log.Debug().Msg("MarkAsRead called")

	if connectionID == "" {
		return 0, svcErr.InvalidArgument("connectionId is required")
	}
	conn, err := s.partyConnection(ctx, readerID, connectionID)
	if err != nil {
		return 0, err
	}

	n, err := s.messages.MarkRead(ctx, conn.ID, readerID, s.now())
	if err != nil {
		log.Error().Err(err).Msg("mark read failed")
		return 0, err
	}
	if n > 0 {
		s.sweep(ctx, cache.HistoryPrefix(conn.ID))
	}

	payload := ReadPayload{ConnectionID: conn.ID}
	if err := s.appCtx.Emitter.EmitToRoom(ctx, broadcast.PersonalRoom(conn.Other(readerID)), broadcast.EventMessagesWereRead, payload); err != nil {
		log.Warn().Err(err).Msg("emit messages_were_read failed")
	}
	return n, nil
}

// React toggles the user's emoji on a group message and broadcasts the new
// aggregate to the group-chat room.
func (s *Service) React(ctx context.Context, sock broadcast.Socket, venueID string, messageID int64, emoji string) (*ReactionsPayload, error) {
	userID := sock.UserID()
	log := s.appCtx.Logger.With().Str("user", userID).Int64("message", messageID).Logger()
	log.Debug().Str("emoji", emoji).Msg("React called")

	emoji = strings.TrimSpace(emoji)
	if venueID == "" || messageID == 0 || emoji == "" {
		return nil, svcErr.InvalidArgument("venueId, messageId and reactionEmoji are required")
	}
	if err := requireVenue(sock, venueID); err != nil {
		return nil, err
	}

	msg, err := s.messages.GetGroupMessage(ctx, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, svcErr.NotFound("message not found")
	}
	if err != nil {
		log.Error().Err(err).Msg("load group message failed")
		return nil, err
	}
	if msg.VenueID != venueID {
		return nil, svcErr.InvalidArgument("message does not belong to this venue")
	}

	if _, err := s.messages.ToggleReaction(ctx, messageID, userID, emoji); err != nil {
		log.Error().Err(err).Msg("toggle reaction failed")
		return nil, err
	}
	reactions, err := s.messages.Reactions(ctx, messageID)
	if err != nil {
		log.Error().Err(err).Msg("load reactions failed")
		return nil, err
	}

	payload := &ReactionsPayload{MessageID: messageID, Reactions: summarize(reactions)}
	if err := s.appCtx.Emitter.EmitToRoom(ctx, broadcast.GroupChatRoom(venueID), broadcast.EventUpdateGroupReactions, payload); err != nil {
		log.Warn().Err(err).Msg("emit update_group_reactions failed")
	}
	return payload, nil
}

// ListMessages returns private history newest first.
//
// Behavior:
//   - Only parties may read → else FORBIDDEN.
//   - cursor is the opaque token of the previous page; "" starts at the latest.
//   - Pages are cached under the connection's history prefix.
func (s *Service) ListMessages(ctx context.Context, userID, connectionID, cursor string, limit int) (*HistoryPage[MessageView], error) {
	if connectionID == "" {
		return nil, svcErr.InvalidArgument("connectionId is required")
	}
	if _, err := s.partyConnection(ctx, userID, connectionID); err != nil {
		return nil, err
	}
	limit = pagination.ClampLimit(limit)
	c, err := pagination.Decode(cursor)
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}

	key := cache.KeyForHistoryPage(connectionID, cursorKey(c, cursor), limit)
	return cachedPage(ctx, s, cache.HistoryPrefix(connectionID), key, func() (*HistoryPage[MessageView], error) {
		msgs, err := s.messages.ListByConnection(ctx, connectionID, c.CreatedAt(), c.ID, limit)
		if err != nil {
			return nil, err
		}
		page := &HistoryPage[MessageView]{Messages: make([]MessageView, 0, len(msgs))}
		for i := range msgs {
			page.Messages = append(page.Messages, toMessageView(&msgs[i]))
		}
		if len(msgs) == limit {
			last := msgs[len(msgs)-1]
			if page.NextCursor, err = pagination.Encode(pagination.After(last.ID, last.CreatedAt)); err != nil {
				return nil, err
			}
		}
		return page, nil
	})
}

// ListGroupMessages returns a venue's group history newest first. Only users
// currently present in the venue may read it.
func (s *Service) ListGroupMessages(ctx context.Context, userID, venueID, cursor string, limit int) (*HistoryPage[GroupMessageView], error) {
	if venueID == "" {
		return nil, svcErr.InvalidArgument("venueId is required")
	}
	current, err := s.appCtx.Presence.CurrentVenue(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current != venueID {
		return nil, svcErr.Forbidden("join the venue to read its chat")
	}
	limit = pagination.ClampLimit(limit)
	c, err := pagination.Decode(cursor)
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}

	key := cache.KeyForGroupHistoryPage(venueID, cursorKey(c, cursor), limit)
	return cachedPage(ctx, s, cache.GroupHistoryPrefix(venueID), key, func() (*HistoryPage[GroupMessageView], error) {
		msgs, err := s.messages.ListGroupByVenue(ctx, venueID, c.CreatedAt(), c.ID, limit)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(msgs))
		for i := range msgs {
			ids = append(ids, msgs[i].SenderID)
		}
		users, err := s.profiles.GetUsers(ctx, ids)
		if err != nil {
			return nil, err
		}

		page := &HistoryPage[GroupMessageView]{Messages: make([]GroupMessageView, 0, len(msgs))}
		for i := range msgs {
			name := ""
			if u, ok := users[msgs[i].SenderID]; ok {
				name = u.Profile.Name
			}
			page.Messages = append(page.Messages, toGroupView(&msgs[i], name))
		}
		if len(msgs) == limit {
			last := msgs[len(msgs)-1]
			if page.NextCursor, err = pagination.Encode(pagination.After(last.ID, last.CreatedAt)); err != nil {
				return nil, err
			}
		}
		return page, nil
	})
}

// cachedPage reads through the Redis cache with singleflight on misses. A
// page is only written back if no send invalidated prefix while it loaded.
func cachedPage[T any](ctx context.Context, s *Service, prefix, key string, load func() (*T, error)) (*T, error) {
	var cached T
	err := s.appCtx.RedisCache.GetJSON(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.appCtx.Logger.Warn().Err(err).Str("key", key).Msg("history cache read failed")
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		version, verr := s.appCtx.RedisCache.Version(ctx, prefix)
		page, err := load()
		if err != nil {
			return nil, err
		}
		if verr != nil {
			s.appCtx.Logger.Warn().Err(verr).Str("key", key).Msg("history cache version read failed")
			return page, nil
		}
		stored, err := s.appCtx.RedisCache.SetJSONIfVersion(ctx, prefix, version, key, page, s.appCtx.Config.Cache.HistoryTTL)
		if err != nil {
			s.appCtx.Logger.Warn().Err(err).Str("key", key).Msg("history cache write failed")
		} else if !stored {
			s.appCtx.Logger.Debug().Str("key", key).Msg("history changed during load, page not cached")
		}
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

func (s *Service) partyConnection(ctx context.Context, userID, connectionID string) (*db.Connection, error) {
	conn, err := s.conns.GetByID(ctx, connectionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, svcErr.NotFound("connection not found")
	}
	if err != nil {
		return nil, err
	}
	if !conn.Involves(userID) {
		return nil, svcErr.Forbidden("you are not part of this connection")
	}
	return conn, nil
}

func (s *Service) sweep(ctx context.Context, prefix string) {
	if _, err := s.appCtx.RedisCache.Invalidate(ctx, prefix); err != nil {
		s.appCtx.Logger.Warn().Err(err).Str("prefix", prefix).Msg("history cache sweep failed")
	}
}

func requireVenue(sock broadcast.Socket, venueID string) error {
	vs, ok := sock.VenueSession()
	if !ok || vs.VenueID != venueID {
		return svcErr.Forbidden("join the venue first")
	}
	return nil
}

func summarize(reactions []db.GroupReaction) []ReactionSummary {
	out := make([]ReactionSummary, 0)
	index := make(map[string]int)
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(out)
			index[r.Emoji] = i
			out = append(out, ReactionSummary{Emoji: r.Emoji})
		}
		out[i].Count++
		out[i].UserIDs = append(out[i].UserIDs, r.UserID)
	}
	return out
}

// summary is the push body: a text preview, or a fixed line for media.
func summary(m *db.Message) string {
	switch {
	case m.Content != nil:
		return preview(*m.Content)
	case m.ImageURL != nil:
		return "sent an image"
	case m.AudioURL != nil:
		return "sent a voice message"
	}
	return "sent a message"
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "..."
}

// cursorKey names a page in the cache. Every spelling of the first page
// shares one key.
func cursorKey(c pagination.Cursor, raw string) string {
	if c.IsZero() {
		return "first"
	}
	return raw
}

func toMessageView(m *db.Message) MessageView {
	return MessageView{
		ID:           m.ID,
		ConnectionID: m.ConnectionID,
		SenderID:     m.SenderID,
		Content:      m.Content,
		ImageURL:     m.ImageURL,
		AudioURL:     m.AudioURL,
		ReadAt:       m.ReadAt,
		CreatedAt:    m.CreatedAt,
	}
}

func toGroupView(m *db.VenueGroupMessage, senderName string) GroupMessageView {
	return GroupMessageView{
		ID:         m.ID,
		VenueID:    m.VenueID,
		SenderID:   m.SenderID,
		SenderName: senderName,
		Content:    m.Content,
		ImageURL:   m.ImageURL,
		AudioURL:   m.AudioURL,
		VideoURL:   m.VideoURL,
		CreatedAt:  m.CreatedAt,
	}
}

func isBlank(s *string) bool { return s == nil || strings.TrimSpace(*s) == "" }

func nonBlank(s *string) *string {
	if isBlank(s) {
		return nil
	}
	return s
}

func strPtr(s string) *string { return &s }
