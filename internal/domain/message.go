package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a chat message exchanged inside a call.
// Persisted to Cassandra, partitioned by call id.
type Message struct {
	MessageID uuid.UUID `json:"message_id"`
	CallID    uuid.UUID `json:"call_id"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sent_at"`
}
