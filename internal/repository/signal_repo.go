package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/venue-match/internal/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SignalRepository provides data access for directed interest signals.
type SignalRepository struct {
	db *gorm.DB
}

func NewSignalRepository(database *gorm.DB) *SignalRepository {
	return &SignalRepository{db: database}
}

func (r *SignalRepository) WithTx(tx *gorm.DB) *SignalRepository {
	return &SignalRepository{db: tx}
}

// Create appends a signal sender → receiver.
//
// Behavior:
//   - An identical in-flight duplicate hits the unique index and yields
//     ErrAlreadyExists instead of an error.
//   - ON CONFLICT DO NOTHING keeps the surrounding transaction usable on
//     drivers that abort a transaction on a failed statement.
func (r *SignalRepository) Create(ctx context.Context, senderID, receiverID string, at time.Time) (*db.Signal, error) {
	s := db.Signal{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		CreatedAt:  at,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&s)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return nil, ErrAlreadyExists
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyExists
	}
	return &s, nil
}

// Exists checks whether sender has ever signalled receiver.
func (r *SignalRepository) Exists(ctx context.Context, senderID, receiverID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Signal{}).
		Where("sender_id = ? AND receiver_id = ?", senderID, receiverID).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// CountSentSince counts signals sent by sender at or after since.
// Used for the rolling 24h free-tier window.
func (r *SignalRepository) CountSentSince(ctx context.Context, senderID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Signal{}).
		Where("sender_id = ? AND created_at >= ?", senderID, since).
		Count(&count).Error
	return count, err
}
