package repository

import (
	"context"
	"time"

	"github.com/oggyb/venue-match/internal/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlockRepository stores blocks and abuse reports.
type BlockRepository struct {
	db *gorm.DB
}

func NewBlockRepository(database *gorm.DB) *BlockRepository {
	return &BlockRepository{db: database}
}

func (r *BlockRepository) WithTx(tx *gorm.DB) *BlockRepository {
	return &BlockRepository{db: tx}
}

// Create records blocker → blocked. ErrAlreadyExists when already blocked.
func (r *BlockRepository) Create(ctx context.Context, blockerID, blockedID string) error {
	b := db.Block{BlockerID: blockerID, BlockedID: blockedID}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blocker_id"}, {Name: "blocked_id"}},
			DoNothing: true,
		}).
		Create(&b)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return ErrAlreadyExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// IsBlocked reports whether a block exists in either direction.
func (r *BlockRepository) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// BlockedUserIDs returns every user that blocked userID or was blocked by it.
func (r *BlockRepository) BlockedUserIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	var blocks []db.Block
	err := r.db.WithContext(ctx).
		Where("blocker_id = ? OR blocked_id = ?", userID, userID).
		Find(&blocks).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(blocks))
	for _, b := range blocks {
		if b.BlockerID == userID {
			out[b.BlockedID] = struct{}{}
		} else {
			out[b.BlockerID] = struct{}{}
		}
	}
	return out, nil
}

// CreateReport appends an abuse report.
func (r *BlockRepository) CreateReport(ctx context.Context, reporterID, targetID, reason string, at time.Time) (*db.Report, error) {
	rep := db.Report{
		ReporterID: reporterID,
		TargetID:   targetID,
		Reason:     reason,
		CreatedAt:  at,
	}
	if err := r.db.WithContext(ctx).Create(&rep).Error; err != nil {
		return nil, err
	}
	return &rep, nil
}

// CountReportsSince counts reports reporter filed against target at or after since.
func (r *BlockRepository) CountReportsSince(ctx context.Context, reporterID, targetID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Report{}).
		Where("reporter_id = ? AND target_id = ? AND created_at >= ?", reporterID, targetID, since).
		Count(&count).Error
	return count, err
}
