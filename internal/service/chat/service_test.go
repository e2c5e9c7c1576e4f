package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"paircall-backend/internal/domain"
	"paircall-backend/internal/repository/cockroach"
	apperrors "paircall-backend/pkg/errors"
)

// MockMessageStore is a mock implementation of MessageStore
type MockMessageStore struct {
	mock.Mock
}

func (m *MockMessageStore) Save(message *domain.Message) error {
	args := m.Called(message)
	return args.Error(0)
}

func (m *MockMessageStore) GetByCall(callID uuid.UUID, limit int) ([]*domain.Message, error) {
	args := m.Called(callID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

// MockCallStore is a mock implementation of CallStore
type MockCallStore struct {
	mock.Mock
}

func (m *MockCallStore) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

// MockUserStore is a mock implementation of UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetByID(ctx context.Context, userID int64) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Deliver(ctx context.Context, envType domain.EnvelopeType, targetUserID int64, payload interface{}) error {
	args := m.Called(ctx, envType, targetUserID, payload)
	return args.Error(0)
}

// TestSendMessage tests that a message is persisted and relayed to the
// partner, not the sender
func TestSendMessage(t *testing.T) {
	messages := new(MockMessageStore)
	calls := new(MockCallStore)
	users := new(MockUserStore)
	notifier := new(MockNotifier)
	service := NewService(messages, calls, users, notifier)

	call := domain.NewCall(1, 2, domain.CallTypeVideo)
	sender := &domain.User{ID: 1, Username: "alice", DisplayName: "Alice"}

	// Setup expectations
	calls.On("GetByID", mock.Anything, call.ID).Return(call, nil)
	messages.On("Save", mock.AnythingOfType("*domain.Message")).Return(nil)
	users.On("GetByID", mock.Anything, int64(1)).Return(sender, nil)

	var payload domain.ChatPayload
	notifier.On("Deliver", mock.Anything, domain.EnvelopeChat, int64(2), mock.Anything).
		Run(func(args mock.Arguments) {
			payload = args.Get(3).(domain.ChatPayload)
		}).Return(nil)

	// Execute
	message, err := service.SendMessage(context.Background(), call.ID, 1, "  hello there  ")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, "hello there", message.Content)
	assert.Equal(t, call.ID, message.CallID)
	assert.NotEqual(t, uuid.Nil, message.MessageID)
	assert.Equal(t, "Alice", payload.SenderName)
	assert.Equal(t, int64(1), payload.SenderID)
	messages.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

// TestSendMessage_EmptyContent tests rejection of blank content
func TestSendMessage_EmptyContent(t *testing.T) {
	messages := new(MockMessageStore)
	calls := new(MockCallStore)
	users := new(MockUserStore)
	notifier := new(MockNotifier)
	service := NewService(messages, calls, users, notifier)

	// Execute
	_, err := service.SendMessage(context.Background(), uuid.New(), 1, "   ")

	// Assert
	assert.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
	messages.AssertNotCalled(t, "Save")
}

// TestSendMessage_TooLong tests the content length cap
func TestSendMessage_TooLong(t *testing.T) {
	messages := new(MockMessageStore)
	calls := new(MockCallStore)
	users := new(MockUserStore)
	notifier := new(MockNotifier)
	service := NewService(messages, calls, users, notifier)

	// Execute
	_, err := service.SendMessage(context.Background(), uuid.New(), 1, strings.Repeat("x", 2001))

	// Assert
	assert.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
	messages.AssertNotCalled(t, "Save")
}

// TestSendMessage_CallEnded tests that chat stops once the call is terminal
func TestSendMessage_CallEnded(t *testing.T) {
	messages := new(MockMessageStore)
	calls := new(MockCallStore)
	users := new(MockUserStore)
	notifier := new(MockNotifier)
	service := NewService(messages, calls, users, notifier)

	call := domain.NewCall(1, 2, domain.CallTypeVideo)
	call.Finalize(domain.CallStatusCompleted, time.Now().UTC())

	// Setup expectations
	calls.On("GetByID", mock.Anything, call.ID).Return(call, nil)

	// Execute
	_, err := service.SendMessage(context.Background(), call.ID, 1, "hello")

	// Assert
	assert.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCallAlreadyEnded))
	messages.AssertNotCalled(t, "Save")
}

// TestSendMessage_NotParticipant tests that an outsider cannot chat into
// a call
func TestSendMessage_NotParticipant(t *testing.T) {
	messages := new(MockMessageStore)
	calls := new(MockCallStore)
	users := new(MockUserStore)
	notifier := new(MockNotifier)
	service := NewService(messages, calls, users, notifier)

	call := domain.NewCall(1, 2, domain.CallTypeVideo)

	// Setup expectations
	calls.On("GetByID", mock.Anything, call.ID).Return(call, nil)

	// Execute
	_, err := service.SendMessage(context.Background(), call.ID, 99, "hello")

	// Assert
	assert.Error(t, err)
	messages.AssertNotCalled(t, "Save")
}

// TestSendTyping tests that typing indicators reach the partner without
// being persisted
func TestSendTyping(t *testing.T) {
	messages := new(MockMessageStore)
	calls := new(MockCallStore)
	users := new(MockUserStore)
	notifier := new(MockNotifier)
	service := NewService(messages, calls, users, notifier)

	call := domain.NewCall(1, 2, domain.CallTypeVideo)

	// Setup expectations
	calls.On("GetByID", mock.Anything, call.ID).Return(call, nil)
	notifier.On("Deliver", mock.Anything, domain.EnvelopeTyping, int64(2), mock.Anything).Return(nil)

	// Execute
	err := service.SendTyping(context.Background(), call.ID, 1, true)

	// Assert
	assert.NoError(t, err)
	messages.AssertNotCalled(t, "Save")
	notifier.AssertExpectations(t)
}

// TestHistory tests chat history retrieval for a participant
func TestHistory(t *testing.T) {
	messages := new(MockMessageStore)
	calls := new(MockCallStore)
	users := new(MockUserStore)
	notifier := new(MockNotifier)
	service := NewService(messages, calls, users, notifier)

	call := domain.NewCall(1, 2, domain.CallTypeVideo)
	stored := []*domain.Message{
		{MessageID: uuid.New(), CallID: call.ID, SenderID: 1, Content: "hi"},
	}

	// Setup expectations
	calls.On("GetByID", mock.Anything, call.ID).Return(call, nil)
	messages.On("GetByCall", call.ID, 50).Return(stored, nil)

	// Execute
	result, err := service.History(context.Background(), call.ID, 2, 0)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, result, 1)
	messages.AssertExpectations(t)
}

// TestHistory_UnknownCall tests history for a call that does not exist
func TestHistory_UnknownCall(t *testing.T) {
	messages := new(MockMessageStore)
	calls := new(MockCallStore)
	users := new(MockUserStore)
	notifier := new(MockNotifier)
	service := NewService(messages, calls, users, notifier)

	callID := uuid.New()

	// Setup expectations
	calls.On("GetByID", mock.Anything, callID).Return(nil, cockroach.ErrCallNotFound)

	// Execute
	_, err := service.History(context.Background(), callID, 1, 10)

	// Assert
	assert.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCallNotFound))
}
