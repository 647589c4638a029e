package model

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleGuest   Role = "guest"
)

// Valid reports whether r can be stored on a profile. Guests are never stored.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

type UserProfile struct {
	ID          int64         `json:"id"`
	Email       string        `json:"email"`
	DisplayName string        `json:"display_name"`
	School      string        `json:"school"`
	ClassName   string        `json:"class_name"`
	Role        Role          `json:"role"`
	PhotoURL    string        `json:"photo_url,omitempty"`
	Points      int           `json:"points"`
	Badges      []EarnedBadge `json:"badges"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// BadgeIDs returns the ids of the earned badges.
func (p *UserProfile) BadgeIDs() []string {
	out := make([]string, len(p.Badges))
	for i, b := range p.Badges {
		out[i] = b.BadgeID
	}
	return out
}

type EarnedBadge struct {
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

// ProfileInput carries the optional fields supplied at registration.
type ProfileInput struct {
	DisplayName string
	School      string
	ClassName   string
	Role        Role
	PhotoURL    string
}

type Ranking struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	School      string `json:"school,omitempty"`
	ClassName   string `json:"class_name,omitempty"`
	Points      int    `json:"points"`
	Rank        int    `json:"rank"`
}
