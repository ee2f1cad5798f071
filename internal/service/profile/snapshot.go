// Package profile projects users into the public shape other users see.
package profile

import (
	"time"

	"github.com/oggyb/venue-match/internal/db"
)

// Snapshot is a user's public card. Email, password hash, credits and
// verification details never leave the server.
type Snapshot struct {
	UserID          string              `json:"userId"`
	Name            string              `json:"name"`
	Age             int                 `json:"age"`
	Gender          string              `json:"gender,omitempty"`
	Bio             string              `json:"bio,omitempty"`
	University      string              `json:"university,omitempty"`
	Tier            db.SubscriptionTier `json:"tier"`
	Verified        bool                `json:"verified"`
	PrimaryPhotoURL *string             `json:"primaryPhotoUrl"`
	StatusText      string              `json:"statusText,omitempty"`
	Interests       []string            `json:"interests,omitempty"`
}

// FromUser builds the snapshot. u must carry its Profile.
func FromUser(u *db.User, now time.Time) Snapshot {
	p := u.Profile
	s := Snapshot{
		UserID: u.ID,
		Tier:   u.SubscriptionTier,
	}
	if p == nil {
		return s
	}
	s.Name = p.Name
	s.Age = p.Age
	s.Gender = p.Gender
	s.Bio = p.Bio
	s.University = p.University
	s.Verified = p.IsVerified()
	s.PrimaryPhotoURL = p.PrimaryPhotoURL()
	s.StatusText = p.ActiveStatus(now)
	for _, in := range p.Interests {
		s.Interests = append(s.Interests, in.Name)
	}
	return s
}
