package repository

import (
	"context"
	"time"

	"github.com/oggyb/venue-match/internal/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRepository manages durable check-ins (ActiveSession).
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(database *gorm.DB) *SessionRepository {
	return &SessionRepository{db: database}
}

// Upsert creates or replaces the user's single active session.
func (r *SessionRepository) Upsert(ctx context.Context, s *db.ActiveSession) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"venue_id", "is_incognito", "expires_at", "updated_at"}),
		}).
		Create(s).Error
}

// Delete removes the user's session while it still names venueID. A
// check-in that moved to another venue is kept. ErrNotFound when nothing
// matched.
func (r *SessionRepository) Delete(ctx context.Context, userID, venueID string) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND venue_id = ?", userID, venueID).
		Delete(&db.ActiveSession{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncognitoUserIDs returns which of userIDs hold an unexpired incognito session.
func (r *SessionRepository) IncognitoUserIDs(ctx context.Context, userIDs []string, now time.Time) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(userIDs) == 0 {
		return out, nil
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&db.ActiveSession{}).
		Where("user_id IN ? AND is_incognito = ? AND expires_at > ?", userIDs, true, now).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// DeleteExpired removes sessions past their expiry.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&db.ActiveSession{})
	return res.RowsAffected, res.Error
}
