// Package model defines data structure.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Message is a persisted chat message. It is immutable once created.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stats holds aggregate information about the stored messages.
type Stats struct {
	TotalMessages int64      `json:"totalMessages"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
}

// Session is the joined identity of one live connection. Sessions only live in
// memory and are never persisted.
type Session struct {
	ConnectionID string    `json:"connectionId"`
	Username     string    `json:"username"`
	JoinedAt     time.Time `json:"joinedAt"`
}
