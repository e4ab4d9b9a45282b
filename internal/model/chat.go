package model

import (
	"time"
)

// ChatKind classifies an activity log entry.
type ChatKind string

const (
	ChatUser    ChatKind = "user"
	ChatSystem  ChatKind = "system"
	ChatSuccess ChatKind = "success"
	ChatError   ChatKind = "error"
)

// ChatEntry is one append-only record of the session's activity log.
type ChatEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      ChatKind  `json:"kind"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Populated on read when the log is stream backed.
	Sequence uint64 `json:"sequence,omitempty"`
}

// ListActivityResponse is the response for listing a session's log.
type ListActivityResponse struct {
	Entries      []ChatEntry `json:"entries"`
	HasMore      bool        `json:"has_more"`
	LastSequence uint64      `json:"last_sequence"`
}
