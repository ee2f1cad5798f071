// Package compass scores co-present users against each other and produces
// the ranked roster shown after a venue join.
package compass

import (
	"sort"
	"time"

	"github.com/oggyb/venue-match/internal/db"
)

const (
	pointsPerCommonInterest = 10
	pointsSameUniversity    = 20
)

// Entry is one roster row.
type Entry struct {
	UserID          string              `json:"userId"`
	Name            string              `json:"name"`
	Tier            db.SubscriptionTier `json:"tier"`
	PrimaryPhotoURL *string             `json:"primaryPhotoUrl"`
	StatusText      string              `json:"statusText,omitempty"`
	Score           int                 `json:"score"`
}

// Filters narrow a roster. Zero ages mean "unspecified".
type Filters struct {
	MinAge      int
	MaxAge      int
	InterestIDs []uint64
}

// Score is 10 per shared interest plus 20 for the same non-empty university
// (exact, case-sensitive). It only reads both profiles, so
// Score(a, b) == Score(b, a).
func Score(a, b *db.Profile) int {
	if a == nil || b == nil {
		return 0
	}

	score := pointsPerCommonInterest * commonInterests(a.Interests, b.Interests)
	if a.University != "" && a.University == b.University {
		score += pointsSameUniversity
	}
	return score
}

func commonInterests(a, b []db.Interest) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[uint64]struct{}, len(a))
	for _, in := range a {
		set[in.ID] = struct{}{}
	}
	n := 0
	for _, in := range b {
		if _, ok := set[in.ID]; ok {
			n++
			delete(set, in.ID) // count duplicates once
		}
	}
	return n
}

// EntryFor renders subject as seen by viewer.
func EntryFor(subject *db.User, viewer *db.Profile, now time.Time) Entry {
	e := Entry{
		UserID: subject.ID,
		Tier:   subject.SubscriptionTier,
	}
	if p := subject.Profile; p != nil {
		e.Name = p.Name
		e.PrimaryPhotoURL = p.PrimaryPhotoURL()
		e.StatusText = p.ActiveStatus(now)
	}
	e.Score = Score(viewer, subject.Profile)
	return e
}

// WithDefaults fills unspecified age bounds from the viewer's stored
// preferences.
func (f Filters) WithDefaults(viewer *db.Profile) Filters {
	if viewer == nil {
		return f
	}
	if f.MinAge == 0 {
		f.MinAge = viewer.PreferredMinAge
	}
	if f.MaxAge == 0 {
		f.MaxAge = viewer.PreferredMaxAge
	}
	return f
}

// Match reports whether p passes the filters.
func (f Filters) Match(p *db.Profile) bool {
	if p == nil {
		return false
	}
	if f.MinAge > 0 && p.Age < f.MinAge {
		return false
	}
	if f.MaxAge > 0 && p.Age > f.MaxAge {
		return false
	}
	if len(f.InterestIDs) == 0 {
		return true
	}
	for _, want := range f.InterestIDs {
		for _, in := range p.Interests {
			if in.ID == want {
				return true
			}
		}
	}
	return false
}

// Rank filters candidates and returns them best score first. Ties are
// broken by name then id so the order is stable.
func Rank(viewer *db.User, candidates []*db.User, f Filters, now time.Time) []Entry {
	f = f.WithDefaults(viewer.Profile)

	out := make([]Entry, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || c.ID == viewer.ID || !f.Match(c.Profile) {
			continue
		}
		out = append(out, EntryFor(c, viewer.Profile, now))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
