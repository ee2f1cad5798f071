package db

import (
	"time"
)

type SubscriptionTier string

const (
	TierFree         SubscriptionTier = "FREE"
	TierPremium      SubscriptionTier = "PREMIUM"
	TierPremiumTimed SubscriptionTier = "PREMIUM_TIMED"
)

type VerificationStatus string

const (
	VerificationNotSubmitted VerificationStatus = "NOT_SUBMITTED"
	VerificationPending      VerificationStatus = "PENDING"
	VerificationApproved     VerificationStatus = "APPROVED"
	VerificationRejected     VerificationStatus = "REJECTED"
)

// User table. Ids are UUID strings so that the canonical pair ordering of
// connections is a plain lexicographic comparison.
type User struct {
	ID                    string           `gorm:"primaryKey;size:36"`
	Email                 string           `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash          string           `gorm:"size:255;not null"`
	Active                bool             `gorm:"default:true"`
	SubscriptionTier      SubscriptionTier `gorm:"size:16;not null;default:FREE"`
	SubscriptionExpiresAt *time.Time
	LastLoginAt           time.Time
	Profile               *Profile  `gorm:"foreignKey:UserID"`
	CreatedAt             time.Time `gorm:"autoCreateTime"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime"`
}

// IsFreeTier reports whether the daily signal limit applies. Timed premium
// falls back to free once it lapses.
func (u *User) IsFreeTier(now time.Time) bool {
	switch u.SubscriptionTier {
	case TierPremium:
		return false
	case TierPremiumTimed:
		return u.SubscriptionExpiresAt == nil || !u.SubscriptionExpiresAt.After(now)
	default:
		return true
	}
}

// Profile holds the mutable discovery attributes. Exactly one per user.
type Profile struct {
	ID                     string             `gorm:"primaryKey;size:36"`
	UserID                 string             `gorm:"uniqueIndex;size:36;not null"`
	Name                   string             `gorm:"size:64;not null"`
	Age                    int                `gorm:"not null"`
	Gender                 string             `gorm:"size:16"`
	University             string             `gorm:"size:128"`
	Bio                    string             `gorm:"size:512"`
	VerificationStatus     VerificationStatus `gorm:"size:16;not null;default:NOT_SUBMITTED"`
	ProvisionalSignalsUsed int                `gorm:"not null;default:0"`
	ExtraSignalCredits     int                `gorm:"not null;default:0"`
	PreferredMinAge        int
	PreferredMaxAge        int
	StatusText             string `gorm:"size:140"`
	StatusExpiresAt        *time.Time
	Interests              []Interest `gorm:"many2many:profile_interests"`
	Photos                 []Photo    `gorm:"foreignKey:ProfileID"`
	CreatedAt              time.Time  `gorm:"autoCreateTime"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime"`
}

func (p *Profile) IsVerified() bool { return p.VerificationStatus == VerificationApproved }

// ActiveStatus returns the transient status line if it has not expired.
func (p *Profile) ActiveStatus(now time.Time) string {
	if p.StatusText == "" || p.StatusExpiresAt == nil || !p.StatusExpiresAt.After(now) {
		return ""
	}
	return p.StatusText
}

// PrimaryPhotoURL prefers the photo flagged primary, then the lowest position.
func (p *Profile) PrimaryPhotoURL() *string {
	var best *Photo
	for i := range p.Photos {
		ph := &p.Photos[i]
		if ph.IsPrimary {
			return &ph.URL
		}
		if best == nil || ph.Position < best.Position {
			best = ph
		}
	}
	if best == nil {
		return nil
	}
	return &best.URL
}

type Interest struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"uniqueIndex;size:64;not null"`
}

type Photo struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	ProfileID string `gorm:"index;size:36;not null"`
	URL       string `gorm:"size:512;not null"`
	IsPrimary bool
	Position  int
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type Venue struct {
	ID        string  `gorm:"primaryKey;size:36"`
	Name      string  `gorm:"size:128;not null"`
	Category  string  `gorm:"size:32;index"`
	Latitude  float64 `gorm:"not null"`
	Longitude float64 `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActiveSession is the durable check-in record.
//
// Primary key on UserID enforces at most one session per user; check-in
// upserts it.
type ActiveSession struct {
	UserID      string    `gorm:"primaryKey;size:36"`
	VenueID     string    `gorm:"index;size:36;not null"`
	IsIncognito bool      `gorm:"not null;default:false"`
	ExpiresAt   time.Time `gorm:"index;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// Signal is a directed "I'm interested" record. Append-only.
//
// Indexes:
//   - idx_signal_sender_receiver_created(sender_id, receiver_id, created_at), unique:
//     only an identical in-flight duplicate conflicts.
//   - idx_signal_sender_created(sender_id, created_at): rolling 24h window count.
type Signal struct {
	ID         string    `gorm:"primaryKey;size:36"`
	SenderID   string    `gorm:"size:36;not null;uniqueIndex:idx_signal_sender_receiver_created,priority:1;index:idx_signal_sender_created,priority:1"`
	ReceiverID string    `gorm:"size:36;not null;uniqueIndex:idx_signal_sender_receiver_created,priority:2;index:idx_signal_receiver"`
	CreatedAt  time.Time `gorm:"not null;uniqueIndex:idx_signal_sender_receiver_created,priority:3;index:idx_signal_sender_created,priority:2"`
}

// Connection is the undirected match. UserAID < UserBID always; the unique
// index on the pair is the final arbiter against duplicate matches.
type Connection struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserAID   string    `gorm:"size:36;not null;uniqueIndex:idx_connection_pair,priority:1"`
	UserBID   string    `gorm:"size:36;not null;uniqueIndex:idx_connection_pair,priority:2;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Other returns the counterpart of userID in the connection.
func (c *Connection) Other(userID string) string {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

func (c *Connection) Involves(userID string) bool {
	return c.UserAID == userID || c.UserBID == userID
}

type Block struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	BlockerID string    `gorm:"size:36;not null;uniqueIndex:idx_block_pair,priority:1"`
	BlockedID string    `gorm:"size:36;not null;uniqueIndex:idx_block_pair,priority:2;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type Report struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	ReporterID string    `gorm:"size:36;not null;index:idx_report_reporter_target,priority:1"`
	TargetID   string    `gorm:"size:36;not null;index:idx_report_reporter_target,priority:2"`
	Reason     string    `gorm:"size:255"`
	CreatedAt  time.Time `gorm:"not null;index:idx_report_reporter_target,priority:3"`
}

// Message is private chat content scoped to a connection.
type Message struct {
	ID           int64     `gorm:"primaryKey;autoIncrement:false"`
	ConnectionID string    `gorm:"size:36;not null;index:idx_message_connection_created,priority:1"`
	SenderID     string    `gorm:"size:36;not null"`
	Content      *string   `gorm:"size:2000"`
	ImageURL     *string   `gorm:"size:512"`
	AudioURL     *string   `gorm:"size:512"`
	ReadAt       *time.Time
	CreatedAt    time.Time `gorm:"not null;index:idx_message_connection_created,priority:2,sort:desc"`
}

// VenueGroupMessage is group chat content scoped to a venue.
type VenueGroupMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"`
	VenueID   string    `gorm:"size:36;not null;index:idx_group_message_venue_created,priority:1"`
	SenderID  string    `gorm:"size:36;not null"`
	Content   *string   `gorm:"size:2000"`
	ImageURL  *string   `gorm:"size:512"`
	AudioURL  *string   `gorm:"size:512"`
	VideoURL  *string   `gorm:"size:512"`
	CreatedAt time.Time `gorm:"not null;index:idx_group_message_venue_created,priority:2,sort:desc"`
}

type GroupReaction struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	MessageID int64     `gorm:"not null;uniqueIndex:idx_group_reaction,priority:1"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_group_reaction,priority:2"`
	Emoji     string    `gorm:"size:32;not null;uniqueIndex:idx_group_reaction,priority:3"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &Profile{}, &Interest{}, &Photo{}, &Venue{}, &ActiveSession{},
		&Signal{}, &Connection{}, &Block{}, &Report{},
		&Message{}, &VenueGroupMessage{}, &GroupReaction{},
	}
}
