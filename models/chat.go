package models

import "time"

// Roles recorded in the conversation log.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// DefaultSessionID is used when a request carries no session id.
const DefaultSessionID = "default"

type ChatRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

// Entry is one turn in a session's conversation log.
type Entry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type ConversationHistory struct {
	SessionID string  `json:"session_id"`
	Entries   []Entry `json:"entries"`
}

// ConversationEntry is the archived row for an Entry.
type ConversationEntry struct {
	ID        uint      `gorm:"primaryKey"`
	SessionID string    `gorm:"size:128;index;not null"`
	Role      string    `gorm:"size:16;not null"`
	Content   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

func (ConversationEntry) TableName() string { return "conversation_entries" }
