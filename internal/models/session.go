package models

import "time"

// Session is the persisted record of a chat session; the live handle is not stored.
type Session struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
