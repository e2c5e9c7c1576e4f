package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paircall-backend/internal/domain"
	apperrors "paircall-backend/pkg/errors"
	"paircall-backend/pkg/logger"
)

// Client operations
const (
	OpJoinQueue    = "join-queue"
	OpLeaveQueue   = "leave-queue"
	OpNextPerson   = "next-person"
	OpEndCall      = "end-call"
	OpWebRTCSignal = "webrtc-signal"
	OpChatMessage  = "chat-message"
	OpTyping       = "typing"
	OpLogout       = "logout"
)

// opTimeout bounds the store work a single inbound frame may trigger
const opTimeout = 10 * time.Second

// inboundFrame is what clients send over the socket
type inboundFrame struct {
	Op      string          `json:"op"`
	CallID  string          `json:"call_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type signalPayload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type chatMessagePayload struct {
	Content string `json:"content"`
}

type typingPayload struct {
	IsTyping bool `json:"is_typing"`
}

// MatchmakingService is the subset of matchmaking the socket layer drives
type MatchmakingService interface {
	RegisterSession(ctx context.Context, userID int64, sessionID string) error
	TouchSession(ctx context.Context, userID int64)
	JoinQueue(ctx context.Context, userID int64) error
	LeaveQueue(ctx context.Context, userID int64) error
	NextPerson(ctx context.Context, userID int64) error
	CleanupUserOnDisconnect(ctx context.Context, userID int64, trigger string)
}

// CallService is the subset of call lifecycle the socket layer drives
type CallService interface {
	EndCall(ctx context.Context, callID uuid.UUID, requestingUserID int64) error
	ForwardSignal(ctx context.Context, callID uuid.UUID, senderID int64, signalType string, data json.RawMessage) error
}

// ChatService is the subset of chat the socket layer drives
type ChatService interface {
	SendMessage(ctx context.Context, callID uuid.UUID, senderID int64, content string) (*domain.Message, error)
	SendTyping(ctx context.Context, callID uuid.UUID, senderID int64, isTyping bool) error
}

// Notifier delivers envelopes back to users
type Notifier interface {
	Deliver(ctx context.Context, envType domain.EnvelopeType, targetUserID int64, payload interface{}) error
}

// MatchHandler routes inbound socket frames to the services and owns
// connection lifecycle side effects
type MatchHandler struct {
	matchmaking MatchmakingService
	calls       CallService
	chat        ChatService
	notifier    Notifier
}

// NewMatchHandler creates a new socket frame dispatcher
func NewMatchHandler(matchmaking MatchmakingService, calls CallService, chat ChatService, notifier Notifier) *MatchHandler {
	return &MatchHandler{
		matchmaking: matchmaking,
		calls:       calls,
		chat:        chat,
		notifier:    notifier,
	}
}

// HandleConnect records the fresh session
func (h *MatchHandler) HandleConnect(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := h.matchmaking.RegisterSession(ctx, client.UserID(), client.SessionID()); err != nil {
		logger.Warn("failed to register session",
			zap.Int64("user_id", client.UserID()), zap.Error(err))
	}
}

// HandleDisconnect tears down everything the departed user held
func (h *MatchHandler) HandleDisconnect(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	h.matchmaking.CleanupUserOnDisconnect(ctx, client.UserID(), "disconnect")
}

// HandleMessage dispatches one inbound frame. Failures go back to the
// sender as error envelopes; the connection stays up.
func (h *MatchHandler) HandleMessage(client *Client, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.sendError(ctx, client.UserID(), "malformed frame")
		return
	}

	userID := client.UserID()

	// Inbound traffic proves the connection is alive; keep the shared
	// session record from expiring mid-connection
	h.matchmaking.TouchSession(ctx, userID)

	var err error
	switch frame.Op {
	case OpJoinQueue:
		err = h.matchmaking.JoinQueue(ctx, userID)

	case OpLeaveQueue:
		err = h.matchmaking.LeaveQueue(ctx, userID)

	case OpNextPerson:
		err = h.matchmaking.NextPerson(ctx, userID)

	case OpEndCall:
		var callID uuid.UUID
		if callID, err = uuid.Parse(frame.CallID); err == nil {
			err = h.calls.EndCall(ctx, callID, userID)
		}

	case OpWebRTCSignal:
		err = h.handleSignal(ctx, userID, frame)

	case OpChatMessage:
		err = h.handleChat(ctx, userID, frame)

	case OpTyping:
		err = h.handleTyping(ctx, userID, frame)

	case OpLogout:
		// Explicit logout runs the same teardown as a dropped connection
		h.matchmaking.CleanupUserOnDisconnect(ctx, userID, "logout")

	default:
		err = apperrors.New(apperrors.ErrCodeInvalidInput, "unknown operation")
	}

	if err != nil {
		logger.Debug("socket operation failed",
			zap.String("op", frame.Op),
			zap.Int64("user_id", userID),
			zap.Error(err))
		h.sendError(ctx, userID, apperrors.AsAppError(err).Message)
	}
}

func (h *MatchHandler) handleSignal(ctx context.Context, userID int64, frame inboundFrame) error {
	callID, err := uuid.Parse(frame.CallID)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "invalid call_id")
	}

	var payload signalPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "invalid signal payload")
	}

	return h.calls.ForwardSignal(ctx, callID, userID, payload.Type, payload.Data)
}

func (h *MatchHandler) handleChat(ctx context.Context, userID int64, frame inboundFrame) error {
	callID, err := uuid.Parse(frame.CallID)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "invalid call_id")
	}

	var payload chatMessagePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "invalid chat payload")
	}

	_, err = h.chat.SendMessage(ctx, callID, userID, payload.Content)
	return err
}

func (h *MatchHandler) handleTyping(ctx context.Context, userID int64, frame inboundFrame) error {
	callID, err := uuid.Parse(frame.CallID)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "invalid call_id")
	}

	var payload typingPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "invalid typing payload")
	}

	return h.chat.SendTyping(ctx, callID, userID, payload.IsTyping)
}

func (h *MatchHandler) sendError(ctx context.Context, userID int64, message string) {
	payload := domain.ErrorPayload{Message: message}
	if err := h.notifier.Deliver(ctx, domain.EnvelopeError, userID, payload); err != nil {
		logger.Debug("failed to deliver error envelope",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}
