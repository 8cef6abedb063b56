package models

import "time"

// User represents a user in the system
type User struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Token     string    `json:"token"`
	PushToken *string   `json:"push_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Couple links two users. A user belongs to at most one couple at a time.
type Couple struct {
	ID        string    `json:"id"`
	User1ID   string    `json:"user1_id"`
	User2ID   string    `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PartnerOf returns the other member of the couple, or "" if userID is not a member.
func (c *Couple) PartnerOf(userID string) string {
	switch userID {
	case c.User1ID:
		return c.User2ID
	case c.User2ID:
		return c.User1ID
	}
	return ""
}

// IsMember reports whether userID belongs to the couple.
func (c *Couple) IsMember(userID string) bool {
	return userID == c.User1ID || userID == c.User2ID
}

// EmotionalState is one append-only state record. The current state of a
// user is the record with the latest created_at.
type EmotionalState struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	State     Emotion   `json:"state"`
	Intensity int       `json:"intensity"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncMessage is a short text sent while both partners share the same
// emotional state. Only the read flag is ever mutated.
type SyncMessage struct {
	ID            string    `json:"id"`
	CoupleID      string    `json:"couple_id"`
	FromUserID    string    `json:"from_user_id"`
	ToUserID      string    `json:"to_user_id"`
	Message       string    `json:"message"`
	SyncedEmotion Emotion   `json:"synced_emotion"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"`
}

// Media types for private images.
const (
	MediaTypePhoto = "photo"
	MediaTypeVideo = "video"
)

// PrivateImage is a view-limited piece of ephemeral content. MaxViews nil
// means unbounded viewing; ExpiresAt nil means no wall-clock expiry.
type PrivateImage struct {
	ID          string     `json:"id"`
	FromUserID  string     `json:"from_user_id"`
	ToUserID    string     `json:"to_user_id"`
	StoragePath string     `json:"storage_path"`
	MediaType   string     `json:"media_type"`
	Caption     *string    `json:"caption,omitempty"`
	MaxViews    *int       `json:"max_views,omitempty"`
	ViewCount   int        `json:"view_count"`
	Viewed      bool       `json:"viewed"`
	ViewedAt    *time.Time `json:"viewed_at,omitempty"`
	IsExpired   bool       `json:"is_expired"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ExpiredAt reports whether the image is dead at the given instant: the
// flag is already set, the view budget is spent, or the wall-clock expiry
// has passed.
func (p *PrivateImage) ExpiredAt(now time.Time) bool {
	if p.IsExpired {
		return true
	}
	if p.MaxViews != nil && p.ViewCount >= *p.MaxViews {
		return true
	}
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return true
	}
	return false
}
