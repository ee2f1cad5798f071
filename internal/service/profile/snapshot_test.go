package profile_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/venue-match/internal/db"
	"github.com/oggyb/venue-match/internal/service/profile"
)

func TestFromUser(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)
	u := &db.User{
		ID:               "u1",
		Email:            "secret@x",
		SubscriptionTier: db.TierPremium,
		Profile: &db.Profile{
			Name:               "Ada",
			Age:                30,
			VerificationStatus: db.VerificationApproved,
			StatusText:         "at the bar",
			StatusExpiresAt:    &later,
			Interests:          []db.Interest{{ID: 1, Name: "jazz"}},
			Photos: []db.Photo{
				{URL: "b.jpg", Position: 1},
				{URL: "a.jpg", Position: 0},
			},
		},
	}

	s := profile.FromUser(u, now)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "Ada", s.Name)
	assert.True(t, s.Verified)
	assert.Equal(t, "at the bar", s.StatusText)
	assert.Equal(t, []string{"jazz"}, s.Interests)
	if assert.NotNil(t, s.PrimaryPhotoURL) {
		assert.Equal(t, "a.jpg", *s.PrimaryPhotoURL)
	}

	// expired status is dropped
	s = profile.FromUser(u, later.Add(time.Minute))
	assert.Empty(t, s.StatusText)
}

func TestFromUserWithoutPhotos(t *testing.T) {
	s := profile.FromUser(&db.User{ID: "u2", Profile: &db.Profile{Name: "Bo"}}, time.Now())
	assert.Nil(t, s.PrimaryPhotoURL)
}
