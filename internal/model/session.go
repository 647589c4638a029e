package model

import "time"

type Session struct {
	ID              int64     `json:"id"`
	Token           string    `json:"token"`
	UserID          int64     `json:"user_id"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
}

type Credential struct {
	UserID       int64     `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Provider     string    `json:"provider"`
	Subject      string    `json:"subject"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated principal behind a session.
type Identity struct {
	UserID          int64     `json:"user_id"`
	Email           string    `json:"email"`
	Role            Role      `json:"role"`
	Guest           bool      `json:"guest"`
	SessionID       int64     `json:"-"`
	Token           string    `json:"-"`
	AuthenticatedAt time.Time `json:"-"`
}
