package chat_test

import (
	"context"
	"strings"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/venue-match/internal/broadcast"
	"github.com/oggyb/venue-match/internal/cache"
	"github.com/oggyb/venue-match/internal/db"
	svcErr "github.com/oggyb/venue-match/internal/errors"
	"github.com/oggyb/venue-match/internal/metrics"
	"github.com/oggyb/venue-match/internal/moderation"
	"github.com/oggyb/venue-match/internal/notify"
	"github.com/oggyb/venue-match/internal/repository"
	"github.com/oggyb/venue-match/internal/service/chat"
	"github.com/oggyb/venue-match/internal/testutil"
)

func setupService(t *testing.T) (*chat.Service, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv(t)
	return chat.NewChatService(env.App, moderation.NewFilter(moderation.DefaultWords...)), env
}

func connect(t *testing.T, env *testutil.Env, a, b string) *db.Connection {
	t.Helper()
	c, err := repository.NewConnectionRepository(env.DB).Create(context.Background(), a, b)
	require.NoError(t, err)
	return c
}

// enter puts the socket into venueID the way a successful join does.
func enter(t *testing.T, env *testutil.Env, sock *testutil.RecordingSocket, venueID string) {
	t.Helper()
	_, err := env.App.Presence.Join(context.Background(), venueID, sock.UserID())
	require.NoError(t, err)
	vs := broadcast.NewVenueSession(venueID)
	for _, r := range vs.Rooms() {
		sock.Join(r)
	}
	sock.SetVenueSession(&vs)
}

func text(s string) *string { return &s }

func TestSendMessageDeliversToBothParties(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)
	a := testutil.CreateUser(t, env.DB, testutil.UserSpec{Name: "Ada"})
	b := testutil.CreateUser(t, env.DB, testutil.UserSpec{Name: "Bo"})
	c := connect(t, env, a.ID, b.ID)

	key := cache.KeyForHistoryPage(c.ID, "first", 20)
	require.NoError(t, env.Redis.Set(key, "stale"))

	view, err := svc.SendMessage(ctx, a.ID, chat.PrivateMessage{ConnectionID: c.ID, Content: text("hello there")})
	require.NoError(t, err)
	assert.NotZero(t, view.ID)
	assert.Equal(t, a.ID, view.SenderID)
	assert.Equal(t, int64(1), testutil.CountRows(t, env.DB, &db.Message{}, ""))

	assert.Len(t, env.Emitter.Find(broadcast.PersonalRoom(a.ID), broadcast.EventReceiveMessage), 1)
	assert.Len(t, env.Emitter.Find(broadcast.PersonalRoom(b.ID), broadcast.EventReceiveMessage), 1)
	assert.False(t, env.Redis.Exists(key))
	// pages loaded before this send can no longer be written back
	gen, err := env.Redis.Get("ver:" + cache.HistoryPrefix(c.ID))
	require.NoError(t, err)
	assert.Equal(t, "1", gen)

	pushes := env.Notifier.For(b.ID)
	require.Len(t, pushes, 1)
	assert.Equal(t, notify.KindNewMessage, pushes[0].Kind)
	assert.Equal(t, "Ada", pushes[0].Title)
	assert.Equal(t, "hello there", pushes[0].Body)
	assert.Empty(t, env.Notifier.For(a.ID))

	assert.Contains(t, env.Badges.Calls(), testutil.BadgeCall{UserID: a.ID, Trigger: notify.TriggerNewMessage})
}

func TestSendMessageGates(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)
	a := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	b := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	pending := testutil.CreateUser(t, env.DB, testutil.UserSpec{Verification: db.VerificationPending})
	outsider := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	c := connect(t, env, a.ID, b.ID)
	pc := connect(t, env, pending.ID, b.ID)

	tests := []struct {
		name   string
		sender string
		in     chat.PrivateMessage
		want   svcErr.Code
	}{
		{"no content", a.ID, chat.PrivateMessage{ConnectionID: c.ID, Content: text("   ")}, svcErr.CodeInvalidArgument},
		{"unverified sender", pending.ID, chat.PrivateMessage{ConnectionID: pc.ID, Content: text("hi")}, svcErr.CodeVerificationRequired},
		{"not a party", outsider.ID, chat.PrivateMessage{ConnectionID: c.ID, Content: text("hi")}, svcErr.CodeForbidden},
		{"unknown connection", a.ID, chat.PrivateMessage{ConnectionID: "missing", Content: text("hi")}, svcErr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SendMessage(ctx, tt.sender, tt.in)
			assert.Equal(t, tt.want, svcErr.CodeOf(err))
		})
	}
	assert.Zero(t, testutil.CountRows(t, env.DB, &db.Message{}, ""))
	assert.Empty(t, env.Emitter.All())
}

func TestPushBodySummarisesContent(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)
	a := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	b := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	c := connect(t, env, a.ID, b.ID)

	long := strings.Repeat("é", 150)
	_, err := svc.SendMessage(ctx, a.ID, chat.PrivateMessage{ConnectionID: c.ID, Content: text(long)})
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, a.ID, chat.PrivateMessage{ConnectionID: c.ID, ImageURL: text("https://cdn/x.jpg")})
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, a.ID, chat.PrivateMessage{ConnectionID: c.ID, AudioURL: text("https://cdn/x.m4a")})
	require.NoError(t, err)

	pushes := env.Notifier.For(b.ID)
	require.Len(t, pushes, 3)
	assert.Equal(t, strings.Repeat("é", 100)+"...", pushes[0].Body)
	assert.Equal(t, "sent an image", pushes[1].Body)
	assert.Equal(t, "sent a voice message", pushes[2].Body)
}

func TestModeratedGroupMessageIsNeverBroadcast(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)
	v := testutil.CreateVenue(t, env.DB, "Bar")
	u := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	sock := testutil.NewSocket(u.ID)
	enter(t, env, sock, v.ID)
	blocked := promtest.ToFloat64(metrics.ModerationBlocked)

	view, err := svc.SendGroupMessage(ctx, sock, chat.GroupMessage{VenueID: v.ID, Content: text("you absolute IDIOT")})
	require.NoError(t, err)
	assert.True(t, view.IsSystem)
	assert.Equal(t, blocked+1, promtest.ToFloat64(metrics.ModerationBlocked))

	assert.Zero(t, testutil.CountRows(t, env.DB, &db.VenueGroupMessage{}, ""))
	assert.Empty(t, env.Emitter.All())

	warnings := sock.Emitted(broadcast.EventReceiveVenueGroupMessage)
	require.Len(t, warnings, 1)
	warning := warnings[0].Payload.(chat.GroupMessageView)
	assert.True(t, warning.IsSystem)
	assert.Equal(t, "system", warning.SenderID)
}

func TestSendGroupMessage(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)
	v := testutil.CreateVenue(t, env.DB, "Bar")
	other := testutil.CreateVenue(t, env.DB, "Pub")
	u := testutil.CreateUser(t, env.DB, testutil.UserSpec{Name: "Ada"})
	sock := testutil.NewSocket(u.ID)

	_, err := svc.SendGroupMessage(ctx, sock, chat.GroupMessage{VenueID: v.ID, Content: text("hi")})
	assert.Equal(t, svcErr.CodeForbidden, svcErr.CodeOf(err))

	enter(t, env, sock, v.ID)
	_, err = svc.SendGroupMessage(ctx, sock, chat.GroupMessage{VenueID: other.ID, Content: text("hi")})
	assert.Equal(t, svcErr.CodeForbidden, svcErr.CodeOf(err))

	key := cache.KeyForGroupHistoryPage(v.ID, "first", 20)
	require.NoError(t, env.Redis.Set(key, "stale"))

	view, err := svc.SendGroupMessage(ctx, sock, chat.GroupMessage{VenueID: v.ID, Content: text("anyone for darts?")})
	require.NoError(t, err)
	assert.Equal(t, "Ada", view.SenderName)
	assert.False(t, view.IsSystem)

	sent := env.Emitter.Find(broadcast.GroupChatRoom(v.ID), broadcast.EventReceiveVenueGroupMessage)
	require.Len(t, sent, 1)
	assert.Equal(t, view.ID, sent[0].Payload.(chat.GroupMessageView).ID)
	assert.Empty(t, env.Emitter.Find(broadcast.VenueRoom(v.ID), broadcast.EventReceiveVenueGroupMessage))
	assert.False(t, env.Redis.Exists(key))
}

func TestTypingRoutesToCounterpart(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)
	a := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	b := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	outsider := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	c := connect(t, env, a.ID, b.ID)

	require.NoError(t, svc.Typing(ctx, a.ID, c.ID, true))
	require.NoError(t, svc.Typing(ctx, a.ID, c.ID, false))

	assert.Len(t, env.Emitter.Find(broadcast.PersonalRoom(b.ID), broadcast.EventUserIsTyping), 1)
	assert.Len(t, env.Emitter.Find(broadcast.PersonalRoom(b.ID), broadcast.EventUserStoppedTyping), 1)
	assert.Empty(t, env.Emitter.Find(broadcast.PersonalRoom(a.ID), broadcast.EventUserIsTyping))

	err := svc.Typing(ctx, outsider.ID, c.ID, true)
	assert.Equal(t, svcErr.CodeForbidden, svcErr.CodeOf(err))
}

func TestGroupTyping(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)
	v := testutil.CreateVenue(t, env.DB, "Bar")
	u := testutil.CreateUser(t, env.DB, testutil.UserSpec{Name: "Ada"})
	sock := testutil.NewSocket(u.ID)
	enter(t, env, sock, v.ID)

	require.NoError(t, svc.GroupTyping(ctx, sock, v.ID, true))
	got := env.Emitter.Find(broadcast.GroupChatRoom(v.ID), broadcast.EventUserIsTypingInGroup)
	require.Len(t, got, 1)
	assert.Equal(t, "Ada", got[0].Payload.(chat.GroupTypingPayload).Name)

	require.NoError(t, svc.GroupTyping(ctx, sock, v.ID, false))
	assert.Len(t, env.Emitter.Find(broadcast.GroupChatRoom(v.ID), broadcast.EventUserStoppedTypingInGroup), 1)
}

func TestMarkAsRead(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)
	a := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	b := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	c := connect(t, env, a.ID, b.ID)

	for i := 0; i < 3; i++ {
		_, err := svc.SendMessage(ctx, a.ID, chat.PrivateMessage{ConnectionID: c.ID, Content: text("ping")})
		require.NoError(t, err)
	}
	_, err := svc.SendMessage(ctx, b.ID, chat.PrivateMessage{ConnectionID: c.ID, Content: text("pong")})
	require.NoError(t, err)

	n, err := svc.MarkAsRead(ctx, b.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, int64(1), testutil.CountRows(t, env.DB, &db.Message{}, "read_at IS NULL"))

	read := env.Emitter.Find(broadcast.PersonalRoom(a.ID), broadcast.EventMessagesWereRead)
	require.Len(t, read, 1)
	assert.Equal(t, c.ID, read[0].Payload.(chat.ReadPayload).ConnectionID)

	n, err = svc.MarkAsRead(ctx, b.ID, c.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReactTogglesAndAggregates(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)
	v := testutil.CreateVenue(t, env.DB, "Bar")
	a := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	b := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	sa, sb := testutil.NewSocket(a.ID), testutil.NewSocket(b.ID)
	enter(t, env, sa, v.ID)
	enter(t, env, sb, v.ID)

	msg, err := svc.SendGroupMessage(ctx, sa, chat.GroupMessage{VenueID: v.ID, Content: text("cheers")})
	require.NoError(t, err)

	_, err = svc.React(ctx, sa, v.ID, msg.ID, "🍻")
	require.NoError(t, err)
	_, err = svc.React(ctx, sb, v.ID, msg.ID, "🍻")
	require.NoError(t, err)
	got, err := svc.React(ctx, sb, v.ID, msg.ID, "❤️")
	require.NoError(t, err)

	require.Len(t, got.Reactions, 2)
	assert.Equal(t, chat.ReactionSummary{Emoji: "🍻", Count: 2, UserIDs: []string{a.ID, b.ID}}, got.Reactions[0])
	assert.Equal(t, "❤️", got.Reactions[1].Emoji)

	// second tap removes it
	got, err = svc.React(ctx, sa, v.ID, msg.ID, "🍻")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Reactions[0].Count)
	assert.Len(t, env.Emitter.Find(broadcast.GroupChatRoom(v.ID), broadcast.EventUpdateGroupReactions), 4)

	_, err = svc.React(ctx, sa, v.ID, 12345, "🍻")
	assert.Equal(t, svcErr.CodeNotFound, svcErr.CodeOf(err))
}

func TestListMessagesPaginatesAndCaches(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)
	a := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	b := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	outsider := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	c := connect(t, env, a.ID, b.ID)

	var sent []int64
	for i := 0; i < 5; i++ {
		v, err := svc.SendMessage(ctx, a.ID, chat.PrivateMessage{ConnectionID: c.ID, Content: text("m")})
		require.NoError(t, err)
		sent = append(sent, v.ID)
	}

	first, err := svc.ListMessages(ctx, b.ID, c.ID, "", 2)
	require.NoError(t, err)
	require.Len(t, first.Messages, 2)
	assert.Equal(t, sent[4], first.Messages[0].ID)
	assert.Equal(t, sent[3], first.Messages[1].ID)
	require.NotEmpty(t, first.NextCursor)
	assert.True(t, env.Redis.Exists(cache.KeyForHistoryPage(c.ID, "first", 2)))

	second, err := svc.ListMessages(ctx, b.ID, c.ID, first.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, second.Messages, 2)
	assert.Equal(t, sent[2], second.Messages[0].ID)

	third, err := svc.ListMessages(ctx, b.ID, c.ID, second.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, third.Messages, 1)
	assert.Empty(t, third.NextCursor)

	_, err = svc.ListMessages(ctx, outsider.ID, c.ID, "", 2)
	assert.Equal(t, svcErr.CodeForbidden, svcErr.CodeOf(err))
	_, err = svc.ListMessages(ctx, a.ID, c.ID, "%%%", 2)
	assert.Equal(t, svcErr.CodeInvalidArgument, svcErr.CodeOf(err))
}

func TestListGroupMessagesRequiresPresence(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)
	v := testutil.CreateVenue(t, env.DB, "Bar")
	a := testutil.CreateUser(t, env.DB, testutil.UserSpec{Name: "Ada"})
	b := testutil.CreateUser(t, env.DB, testutil.UserSpec{})
	sa := testutil.NewSocket(a.ID)
	enter(t, env, sa, v.ID)

	_, err := svc.SendGroupMessage(ctx, sa, chat.GroupMessage{VenueID: v.ID, Content: text("hi all")})
	require.NoError(t, err)

	_, err = svc.ListGroupMessages(ctx, b.ID, v.ID, "", 10)
	assert.Equal(t, svcErr.CodeForbidden, svcErr.CodeOf(err))

	page, err := svc.ListGroupMessages(ctx, a.ID, v.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "Ada", page.Messages[0].SenderName)
	assert.Empty(t, page.NextCursor)
}
