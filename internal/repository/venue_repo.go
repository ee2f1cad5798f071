package repository

import (
	"context"
	"errors"

	"github.com/oggyb/venue-match/internal/db"

	"gorm.io/gorm"
)

type VenueRepository struct {
	db *gorm.DB
}

func NewVenueRepository(database *gorm.DB) *VenueRepository {
	return &VenueRepository{db: database}
}

// Get returns the venue or ErrNotFound.
func (r *VenueRepository) Get(ctx context.Context, venueID string) (*db.Venue, error) {
	var v db.Venue
	err := r.db.WithContext(ctx).First(&v, "id = ?", venueID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
