package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/venue-match/internal/db"
)

// UserSpec describes a fixture user. Zero values pick sensible defaults:
// verified, free tier, two photos, age 25.
type UserSpec struct {
	Name         string
	Age          int
	University   string
	Interests    []string
	Photos       int
	NoPhotos     bool
	Verification db.VerificationStatus
	Tier         db.SubscriptionTier
	TierExpires  *time.Time
	Credits      int
	Provisional  int
	MinAge       int
	MaxAge       int
}

// CreateUser inserts a user with profile, interests and photos.
func CreateUser(t *testing.T, gdb *gorm.DB, spec UserSpec) *db.User {
	t.Helper()

	if spec.Name == "" {
		spec.Name = "user-" + uuid.NewString()[:8]
	}
	if spec.Age == 0 {
		spec.Age = 25
	}
	if spec.Photos == 0 && !spec.NoPhotos {
		spec.Photos = 2
	}
	if spec.Verification == "" {
		spec.Verification = db.VerificationApproved
	}
	if spec.Tier == "" {
		spec.Tier = db.TierFree
	}

	userID := uuid.NewString()
	profileID := uuid.NewString()

	interests := make([]db.Interest, 0, len(spec.Interests))
	for _, name := range spec.Interests {
		in := db.Interest{Name: name}
		require.NoError(t, gdb.Where(db.Interest{Name: name}).FirstOrCreate(&in).Error)
		interests = append(interests, in)
	}

	photos := make([]db.Photo, 0, spec.Photos)
	for i := 0; i < spec.Photos; i++ {
		photos = append(photos, db.Photo{
			URL:       fmt.Sprintf("https://cdn.test/%s/%d.jpg", userID, i),
			IsPrimary: i == 0,
			Position:  i,
		})
	}

	u := &db.User{
		ID:                    userID,
		Email:                 userID + "@test.local",
		PasswordHash:          "x",
		Active:                true,
		SubscriptionTier:      spec.Tier,
		SubscriptionExpiresAt: spec.TierExpires,
		LastLoginAt:           time.Now().UTC(),
		Profile: &db.Profile{
			ID:                     profileID,
			UserID:                 userID,
			Name:                   spec.Name,
			Age:                    spec.Age,
			University:             spec.University,
			VerificationStatus:     spec.Verification,
			ExtraSignalCredits:     spec.Credits,
			ProvisionalSignalsUsed: spec.Provisional,
			PreferredMinAge:        spec.MinAge,
			PreferredMaxAge:        spec.MaxAge,
			Interests:              interests,
			Photos:                 photos,
		},
	}
	require.NoError(t, gdb.Create(u).Error)
	return u
}

// CreateVenue inserts a venue.
func CreateVenue(t *testing.T, gdb *gorm.DB, name string) *db.Venue {
	t.Helper()
	v := &db.Venue{ID: uuid.NewString(), Name: name, Category: "bar", Latitude: 51.5, Longitude: -0.12}
	require.NoError(t, gdb.Create(v).Error)
	return v
}

// CreateSignals backdates n signals from sender to fresh receivers.
func CreateSignals(t *testing.T, gdb *gorm.DB, senderID string, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		s := db.Signal{
			ID:         uuid.NewString(),
			SenderID:   senderID,
			ReceiverID: uuid.NewString(),
			CreatedAt:  at.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, gdb.Create(&s).Error)
	}
}

// CountRows counts rows of model matching the optional where clause.
func CountRows(t *testing.T, gdb *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := gdb.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
