package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/oggyb/venue-match/internal/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConnectionRepository maintains the symmetric match relation.
// Every row is stored in canonical order (user_a_id < user_b_id), so one
// lookup answers "are A and B connected" regardless of argument order.
type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(database *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: database}
}

func (r *ConnectionRepository) WithTx(tx *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: tx}
}

// Create inserts the connection for the unordered pair {a, b}.
//
// Behavior:
//   - Arguments are canonicalised, so Create(a, b) and Create(b, a) target the same row.
//   - If the pair already exists → ErrAlreadyExists (the unique index is the arbiter).
func (r *ConnectionRepository) Create(ctx context.Context, a, b string) (*db.Connection, error) {
	userA, userB := CanonicalPair(a, b)
	c := db.Connection{
		ID:      uuid.NewString(),
		UserAID: userA,
		UserBID: userB,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_a_id"}, {Name: "user_b_id"}},
			DoNothing: true,
		}).
		Create(&c)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return nil, ErrAlreadyExists
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyExists
	}
	return &c, nil
}

// FindByPair returns the connection for {a, b} or ErrNotFound.
func (r *ConnectionRepository) FindByPair(ctx context.Context, a, b string) (*db.Connection, error) {
	userA, userB := CanonicalPair(a, b)
	var c db.Connection
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? AND user_b_id = ?", userA, userB).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*db.Connection, error) {
	var c db.Connection
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Delete removes a connection by id. ErrNotFound when nothing was deleted.
func (r *ConnectionRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&db.Connection{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByPair removes the connection for {a, b} if any and reports whether
// one existed.
func (r *ConnectionRepository) DeleteByPair(ctx context.Context, a, b string) (bool, error) {
	userA, userB := CanonicalPair(a, b)
	res := r.db.WithContext(ctx).
		Where("user_a_id = ? AND user_b_id = ?", userA, userB).
		Delete(&db.Connection{})
	return res.RowsAffected > 0, res.Error
}

// ListForUser returns one page of a user's connections, newest first.
func (r *ConnectionRepository) ListForUser(ctx context.Context, userID string, offset, limit int) ([]db.Connection, int64, error) {
	var (
		conns []db.Connection
		total int64
	)
	q := r.db.WithContext(ctx).
		Model(&db.Connection{}).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Session(&gorm.Session{}) // reusable for both count and page

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&conns).Error
	if err != nil {
		return nil, 0, err
	}
	return conns, total, nil
}

// ConnectedUserIDs returns the set of users matched with userID.
func (r *ConnectionRepository) ConnectedUserIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	var conns []db.Connection
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Find(&conns).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(conns))
	for i := range conns {
		out[conns[i].Other(userID)] = struct{}{}
	}
	return out, nil
}
