package domain

import "time"

// Message is a short text post on the board.
type Message struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Feed event types published when messages change.
const (
	MessageEventCreated = "message.created"
	MessageEventUpdated = "message.updated"
	MessageEventDeleted = "message.deleted"
)

// MessageEvent describes a message change pushed to feed subscribers.
type MessageEvent struct {
	Type       string    `json:"type"`
	MessageID  int64     `json:"message_id"`
	Message    *Message  `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
