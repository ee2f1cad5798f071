package notify

import (
	"context"
	"time"
)

// Push notification kinds.
const (
	KindNewConnection  = "NEW_CONNECTION"
	KindSignalReceived = "SIGNAL_RECEIVED"
	KindNewMessage     = "NEW_MESSAGE"
)

// Badge triggers.
const (
	TriggerNewMatch   = "NEW_MATCH"
	TriggerNewCheckIn = "NEW_CHECKIN"
	TriggerNewMessage = "NEW_MESSAGE"
)

// Push is a notification for every registered device of one user.
type Push struct {
	UserID string            `json:"userId"`
	Kind   string            `json:"kind"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
	SentAt time.Time         `json:"sentAt"`
}

// Notifier queues push/in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, p Push) error
}

// BadgeEvaluator asks the achievements service to evaluate a user.
type BadgeEvaluator interface {
	Evaluate(ctx context.Context, userID, trigger string) error
}

// PushNotifier publishes Push events keyed by user id so that one user's
// notifications stay ordered on a partition.
type PushNotifier struct {
	pub   Publisher
	topic string
}

func NewPushNotifier(pub Publisher, topic string) *PushNotifier {
	return &PushNotifier{pub: pub, topic: topic}
}

func (n *PushNotifier) Notify(ctx context.Context, p Push) error {
	if p.SentAt.IsZero() {
		p.SentAt = time.Now().UTC()
	}
	return n.pub.Publish(ctx, n.topic, p.UserID, p)
}

type badgeEvent struct {
	UserID  string    `json:"userId"`
	Trigger string    `json:"trigger"`
	At      time.Time `json:"at"`
}

type BadgeTrigger struct {
	pub   Publisher
	topic string
}

func NewBadgeTrigger(pub Publisher, topic string) *BadgeTrigger {
	return &BadgeTrigger{pub: pub, topic: topic}
}

func (b *BadgeTrigger) Evaluate(ctx context.Context, userID, trigger string) error {
	return b.pub.Publish(ctx, b.topic, userID, badgeEvent{
		UserID:  userID,
		Trigger: trigger,
		At:      time.Now().UTC(),
	})
}
