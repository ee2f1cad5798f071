package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oggyb/venue-match/internal/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository persists private and venue group chat.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

// Create stores a private message. The caller assigns ID and CreatedAt.
func (r *MessageRepository) Create(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListByConnection returns up to limit messages older than the cursor,
// newest first. A zero beforeID starts from the latest message.
//
// Behavior:
//   - Ordering is (created_at DESC, id DESC); the cursor is the (created_at, id)
//     pair of the last message of the previous page.
func (r *MessageRepository) ListByConnection(ctx context.Context, connectionID string, before time.Time, beforeID int64, limit int) ([]db.Message, error) {
	q := r.db.WithContext(ctx).Where("connection_id = ?", connectionID)
	if beforeID > 0 {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", before, before, beforeID)
	}
	var msgs []db.Message
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&msgs).Error
	return msgs, err
}

// MarkRead stamps read_at on every unread message of the connection that
// readerID did not send. Returns the number of messages updated.
func (r *MessageRepository) MarkRead(ctx context.Context, connectionID, readerID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("connection_id = ? AND sender_id <> ? AND read_at IS NULL", connectionID, readerID).
		UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

// CreateGroup stores a venue group message.
func (r *MessageRepository) CreateGroup(ctx context.Context, m *db.VenueGroupMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MessageRepository) GetGroupMessage(ctx context.Context, id int64) (*db.VenueGroupMessage, error) {
	var m db.VenueGroupMessage
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListGroupByVenue mirrors ListByConnection for a venue's group chat.
func (r *MessageRepository) ListGroupByVenue(ctx context.Context, venueID string, before time.Time, beforeID int64, limit int) ([]db.VenueGroupMessage, error) {
	q := r.db.WithContext(ctx).Where("venue_id = ?", venueID)
	if beforeID > 0 {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", before, before, beforeID)
	}
	var msgs []db.VenueGroupMessage
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&msgs).Error
	return msgs, err
}

// ToggleReaction adds the (message, user, emoji) reaction, or removes it when
// it is already present. Returns true when the reaction is now set.
func (r *MessageRepository) ToggleReaction(ctx context.Context, messageID int64, userID, emoji string) (bool, error) {
	var added bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
			Delete(&db.GroupReaction{})
		if del.Error != nil {
			return del.Error
		}
		if del.RowsAffected > 0 {
			return nil
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&db.GroupReaction{MessageID: messageID, UserID: userID, Emoji: emoji})
		if res.Error != nil {
			return res.Error
		}
		added = true
		return nil
	})
	return added, err
}

// Reactions returns all reactions on a group message in insertion order.
func (r *MessageRepository) Reactions(ctx context.Context, messageID int64) ([]db.GroupReaction, error) {
	var out []db.GroupReaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}
