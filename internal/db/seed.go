package db

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var seedInterests = []string{
	"music", "hiking", "coffee", "football", "cinema", "travel",
	"cooking", "books", "running", "art", "gaming", "yoga",
}

var seedUniversities = []string{"", "UCL", "KCL", "Imperial", "LSE"}

var seedVenues = []Venue{
	{Name: "The Lamb", Category: "BAR", Latitude: 51.5226, Longitude: -0.1182},
	{Name: "Prufrock Coffee", Category: "CAFE", Latitude: 51.5196, Longitude: -0.1093},
	{Name: "Fabric", Category: "CLUB", Latitude: 51.5197, Longitude: -0.1024},
}

// SeedTestData resets the database and populates it with demo data.
//
// Behavior:
//  1. Clears every table owned by the service.
//  2. Creates interests and three venues.
//  3. Creates 20 users with profiles, 2-4 photos each and 2-5 interests.
//     Every other user is verified; users 1-4 are premium.
//
// Returns the created users in creation order.
func SeedTestData(db *gorm.DB) ([]User, error) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	for _, table := range []string{
		"group_reactions", "venue_group_messages", "messages", "reports", "blocks",
		"connections", "signals", "active_sessions", "photos", "profile_interests",
		"profiles", "users", "interests", "venues",
	} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	interests := make([]Interest, 0, len(seedInterests))
	for _, name := range seedInterests {
		interests = append(interests, Interest{Name: name})
	}
	if err := db.Create(&interests).Error; err != nil {
		return nil, fmt.Errorf("failed to seed interests: %w", err)
	}

	for i := range seedVenues {
		v := seedVenues[i]
		v.ID = uuid.NewString()
		if err := db.Create(&v).Error; err != nil {
			return nil, fmt.Errorf("failed to seed venue: %w", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	users := make([]User, 0, 20)
	for i := 1; i <= 20; i++ {
		tier := TierFree
		if i <= 4 {
			tier = TierPremium
		}
		verification := VerificationPending
		if i%2 == 0 {
			verification = VerificationApproved
		}
		gender := "male"
		if i > 10 {
			gender = "female"
		}

		user := User{
			ID:               uuid.NewString(),
			Email:            fmt.Sprintf("user%d@example.com", i),
			PasswordHash:     string(hash),
			Active:           true,
			SubscriptionTier: tier,
			LastLoginAt:      time.Now().Add(-time.Duration(r.Intn(500)) * time.Hour),
		}
		profile := Profile{
			ID:                 uuid.NewString(),
			UserID:             user.ID,
			Name:               fmt.Sprintf("User %d", i),
			Age:                20 + r.Intn(15),
			Gender:             gender,
			University:         seedUniversities[r.Intn(len(seedUniversities))],
			VerificationStatus: verification,
			PreferredMinAge:    18,
			PreferredMaxAge:    45,
		}

		// pick 2-5 distinct interests
		perm := r.Perm(len(interests))
		for _, idx := range perm[:2+r.Intn(4)] {
			profile.Interests = append(profile.Interests, interests[idx])
		}
		for p := 0; p < 2+r.Intn(3); p++ {
			profile.Photos = append(profile.Photos, Photo{
				URL:       fmt.Sprintf("https://img.example.com/%s/%d.jpg", user.ID, p),
				IsPrimary: p == 0,
				Position:  p,
			})
		}
		user.Profile = &profile

		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to seed user: %w", err)
		}
		users = append(users, user)
	}

	return users, nil
}
