package repository

import (
	"context"
	"errors"

	"github.com/oggyb/venue-match/internal/db"

	"gorm.io/gorm"
)

// ProfileRepository reads users with their discovery profile and mutates
// the signal-related counters on it.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// WithTx binds the repository to a transaction.
func (r *ProfileRepository) WithTx(tx *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: tx}
}

// GetUser loads a user with profile, interests and photos.
// Returns ErrNotFound when the user or its profile is missing.
func (r *ProfileRepository) GetUser(ctx context.Context, userID string) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Preload("Profile.Interests").
		Preload("Profile.Photos").
		First(&u, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.Profile == nil {
		return nil, ErrNotFound
	}
	return &u, nil
}

// GetUsers loads several users keyed by id. Missing ids are simply absent.
func (r *ProfileRepository) GetUsers(ctx context.Context, userIDs []string) (map[string]*db.User, error) {
	out := make(map[string]*db.User, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var users []db.User
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Preload("Profile.Interests").
		Preload("Profile.Photos").
		Where("id IN ?", userIDs).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Profile != nil {
			out[users[i].ID] = &users[i]
		}
	}
	return out, nil
}

// ClaimProvisionalSignal spends one slot of the pending-verification quota.
// The conditional update keeps concurrent claims from overshooting; false
// means the quota is exhausted.
func (r *ProfileRepository) ClaimProvisionalSignal(ctx context.Context, profileID string, quota int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Where("id = ? AND provisional_signals_used < ?", profileID, quota).
		UpdateColumn("provisional_signals_used", gorm.Expr("provisional_signals_used + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ConsumeSignalCredit spends one extra signal credit. The conditional update
// makes it safe under concurrent spends; false means no credit was left.
func (r *ProfileRepository) ConsumeSignalCredit(ctx context.Context, profileID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Where("id = ? AND extra_signal_credits > 0", profileID).
		UpdateColumn("extra_signal_credits", gorm.Expr("extra_signal_credits - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
