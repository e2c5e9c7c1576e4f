package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paircall-backend/internal/domain"
	"paircall-backend/internal/repository/cockroach"
	"paircall-backend/pkg/constants"
	apperrors "paircall-backend/pkg/errors"
	"paircall-backend/pkg/logger"
)

// MessageStore persists chat messages
type MessageStore interface {
	Save(message *domain.Message) error
	GetByCall(callID uuid.UUID, limit int) ([]*domain.Message, error)
}

// CallStore resolves calls for participant and status checks
type CallStore interface {
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
}

// UserStore resolves sender display names
type UserStore interface {
	GetByID(ctx context.Context, userID int64) (*domain.User, error)
}

// Notifier delivers envelopes to users wherever they are connected
type Notifier interface {
	Deliver(ctx context.Context, envType domain.EnvelopeType, targetUserID int64, payload interface{}) error
}

// Service handles in-call text chat: messages are persisted, then
// relayed to the partner. Chat only exists inside an ACTIVE call.
type Service struct {
	messages MessageStore
	calls    CallStore
	users    UserStore
	notifier Notifier
}

// NewService creates a new chat service
func NewService(messages MessageStore, calls CallStore, users UserStore, notifier Notifier) *Service {
	return &Service{
		messages: messages,
		calls:    calls,
		users:    users,
		notifier: notifier,
	}
}

// SendMessage persists a chat message and relays it to the sender's
// partner in the call
func (s *Service) SendMessage(ctx context.Context, callID uuid.UUID, senderID int64, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewWithStatus(apperrors.ErrCodeValidation, "message content is empty", 400)
	}
	if len(content) > constants.ChatMessageMaxLength {
		return nil, apperrors.NewWithStatus(apperrors.ErrCodeValidation, "message content too long", 400)
	}

	call, partnerID, err := s.activeCallPartner(ctx, callID, senderID)
	if err != nil {
		return nil, err
	}

	message := &domain.Message{
		MessageID: uuid.New(),
		CallID:    call.ID,
		SenderID:  senderID,
		Content:   content,
		SentAt:    time.Now().UTC(),
	}

	if err := s.messages.Save(message); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeDatabase, "failed to persist chat message", err)
	}

	senderName := ""
	if sender, err := s.users.GetByID(ctx, senderID); err == nil {
		senderName = sender.DisplayName
	}

	payload := domain.ChatPayload{
		MessageID:  message.MessageID,
		CallID:     message.CallID,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    message.Content,
		SentAt:     message.SentAt,
	}
	if err := s.notifier.Deliver(ctx, domain.EnvelopeChat, partnerID, payload); err != nil {
		// The message is persisted; the partner catches up via history
		logger.Warn("failed to relay chat message",
			zap.Int64("partner_id", partnerID),
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}

	return message, nil
}

// SendTyping relays a typing indicator to the partner. Indicators are
// transient and never persisted.
func (s *Service) SendTyping(ctx context.Context, callID uuid.UUID, senderID int64, isTyping bool) error {
	_, partnerID, err := s.activeCallPartner(ctx, callID, senderID)
	if err != nil {
		return err
	}

	payload := domain.TypingPayload{
		CallID:   callID,
		SenderID: senderID,
		IsTyping: isTyping,
	}
	if err := s.notifier.Deliver(ctx, domain.EnvelopeTyping, partnerID, payload); err != nil {
		logger.Debug("failed to relay typing indicator",
			zap.Int64("partner_id", partnerID), zap.Error(err))
	}
	return nil
}

// History returns the most recent messages of a call the user
// participated in, newest first
func (s *Service) History(ctx context.Context, callID uuid.UUID, userID int64, limit int) ([]*domain.Message, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, cockroach.ErrCallNotFound) {
			return nil, apperrors.CallNotFound(callID.String())
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeDatabase, "failed to load call", err)
	}
	if _, isParticipant := call.PartnerOf(userID); !isParticipant {
		return nil, apperrors.NewWithStatus(apperrors.ErrCodeValidation,
			"user is not a participant of this call", 403)
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	messages, err := s.messages.GetByCall(callID, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeDatabase, "failed to load chat history", err)
	}
	return messages, nil
}

func (s *Service) activeCallPartner(ctx context.Context, callID uuid.UUID, userID int64) (*domain.Call, int64, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, cockroach.ErrCallNotFound) {
			return nil, 0, apperrors.CallNotFound(callID.String())
		}
		return nil, 0, apperrors.Wrap(apperrors.ErrCodeDatabase, "failed to load call", err)
	}

	partnerID, isParticipant := call.PartnerOf(userID)
	if !isParticipant {
		return nil, 0, apperrors.NewWithStatus(apperrors.ErrCodeValidation,
			"user is not a participant of this call", 403)
	}
	if call.IsTerminal() {
		return nil, 0, apperrors.CallAlreadyEnded(callID.String())
	}

	return call, partnerID, nil
}
