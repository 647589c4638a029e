package model

import "time"

type ActivityStatus string

const (
	StatusPending  ActivityStatus = "pending"
	StatusApproved ActivityStatus = "approved"
	StatusRejected ActivityStatus = "rejected"
)

type Activity struct {
	ID              int64          `json:"id"`
	UserID          int64          `json:"user_id"`
	UserName        string         `json:"user_name"`
	UserPhoto       string         `json:"user_photo,omitempty"`
	Category        string         `json:"category"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	PhotoURL        string         `json:"photo_url,omitempty"`
	Points          int            `json:"points"`
	Status          ActivityStatus `json:"status"`
	SubmittedAt     time.Time      `json:"submitted_at"`
	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty"`
	ReviewedBy      *int64         `json:"reviewed_by,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
}

// Approval is the outcome of a committed approval.
type Approval struct {
	Activity    Activity      `json:"activity"`
	TotalPoints int           `json:"total_points"`
	NewBadges   []EarnedBadge `json:"new_badges"`
}
