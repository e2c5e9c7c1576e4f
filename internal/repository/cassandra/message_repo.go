package cassandra

import (
	"fmt"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"paircall-backend/internal/domain"
)

// MessageRepository handles chat message storage in Cassandra,
// partitioned by call id
type MessageRepository struct {
	session *gocql.Session
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(session *gocql.Session) *MessageRepository {
	return &MessageRepository{session: session}
}

// Save inserts a new chat message
func (r *MessageRepository) Save(message *domain.Message) error {
	if message.MessageID == uuid.Nil {
		message.MessageID = uuid.New()
	}

	query := `
		INSERT INTO call_messages (
			call_id, message_id, sender_id, content, sent_at
		) VALUES (?, ?, ?, ?, ?)
	`

	err := r.session.Query(query,
		message.CallID,
		message.MessageID,
		message.SenderID,
		message.Content,
		message.SentAt,
	).Exec()

	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// GetByCall retrieves the most recent messages of a call, newest first
func (r *MessageRepository) GetByCall(callID uuid.UUID, limit int) ([]*domain.Message, error) {
	query := `
		SELECT call_id, message_id, sender_id, content, sent_at
		FROM call_messages
		WHERE call_id = ?
		ORDER BY sent_at DESC
		LIMIT ?
	`

	iter := r.session.Query(query, callID, limit).Iter()

	var messages []*domain.Message
	for {
		message := &domain.Message{}
		if !iter.Scan(
			&message.CallID,
			&message.MessageID,
			&message.SenderID,
			&message.Content,
			&message.SentAt,
		) {
			break
		}
		messages = append(messages, message)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch messages for call %s: %w", callID, err)
	}

	return messages, nil
}
