package call

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"paircall-backend/internal/domain"
	"paircall-backend/internal/repository/cockroach"
	apperrors "paircall-backend/pkg/errors"
)

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

func (m *MockCallStore) FindActiveForUser(ctx context.Context, userID int64) (*domain.Call, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

func (m *MockCallStore) Finalize(ctx context.Context, call *domain.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

// MockPresenceStore is a mock implementation of PresenceStore
type MockPresenceStore struct {
	mock.Mock
}

func (m *MockPresenceStore) Clear(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Deliver(ctx context.Context, envType domain.EnvelopeType, targetUserID int64, payload interface{}) error {
	args := m.Called(ctx, envType, targetUserID, payload)
	return args.Error(0)
}

func activeCall(user1ID, user2ID int64) *domain.Call {
	call := domain.NewCall(user1ID, user2ID, domain.CallTypeVideo)
	call.StartedAt = time.Now().UTC().Add(-90 * time.Second)
	return call
}

// TestEndCall tests the normal terminal transition with both participants
// notified
func TestEndCall(t *testing.T) {
	calls := new(MockCallStore)
	presence := new(MockPresenceStore)
	notifier := new(MockNotifier)
	service := NewService(calls, presence, notifier)

	call := activeCall(1, 2)

	// Setup expectations
	calls.On("GetByID", mock.Anything, call.ID).Return(call, nil)
	calls.On("Finalize", mock.Anything, call).Return(nil)
	presence.On("Clear", mock.Anything, int64(1)).Return(nil)
	presence.On("Clear", mock.Anything, int64(2)).Return(nil)
	notifier.On("Deliver", mock.Anything, domain.EnvelopeCallEnded, int64(1), mock.Anything).Return(nil)
	notifier.On("Deliver", mock.Anything, domain.EnvelopeCallEnded, int64(2), mock.Anything).Return(nil)

	// Execute
	err := service.EndCall(context.Background(), call.ID, 1)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, domain.CallStatusCompleted, call.Status)
	assert.NotNil(t, call.EndedAt)
	assert.NotNil(t, call.DurationSeconds)
	assert.GreaterOrEqual(t, *call.DurationSeconds, 90)
	calls.AssertExpectations(t)
	presence.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

// TestEndCall_AlreadyEnded tests that a second end attempt fails without
// touching stored state
func TestEndCall_AlreadyEnded(t *testing.T) {
	calls := new(MockCallStore)
	presence := new(MockPresenceStore)
	notifier := new(MockNotifier)
	service := NewService(calls, presence, notifier)

	call := activeCall(1, 2)
	call.Finalize(domain.CallStatusCompleted, time.Now().UTC())

	// Setup expectations
	calls.On("GetByID", mock.Anything, call.ID).Return(call, nil)

	// Execute
	err := service.EndCall(context.Background(), call.ID, 1)

	// Assert
	assert.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCallAlreadyEnded))
	calls.AssertNotCalled(t, "Finalize")
	notifier.AssertNotCalled(t, "Deliver")
}

// TestEndCall_LostFinalizeRace tests the store-side guard: a concurrent
// finalize surfaces as CALL_ALREADY_ENDED
func TestEndCall_LostFinalizeRace(t *testing.T) {
	calls := new(MockCallStore)
	presence := new(MockPresenceStore)
	notifier := new(MockNotifier)
	service := NewService(calls, presence, notifier)

	call := activeCall(1, 2)

	// Setup expectations
	calls.On("GetByID", mock.Anything, call.ID).Return(call, nil)
	calls.On("Finalize", mock.Anything, call).Return(cockroach.ErrNotActive)

	// Execute
	err := service.EndCall(context.Background(), call.ID, 2)

	// Assert
	assert.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCallAlreadyEnded))
	notifier.AssertNotCalled(t, "Deliver")
}

// TestEndCall_NotParticipant tests that an outsider cannot end a call
func TestEndCall_NotParticipant(t *testing.T) {
	calls := new(MockCallStore)
	presence := new(MockPresenceStore)
	notifier := new(MockNotifier)
	service := NewService(calls, presence, notifier)

	call := activeCall(1, 2)

	// Setup expectations
	calls.On("GetByID", mock.Anything, call.ID).Return(call, nil)

	// Execute
	err := service.EndCall(context.Background(), call.ID, 99)

	// Assert
	assert.Error(t, err)
	calls.AssertNotCalled(t, "Finalize")
}

// TestEndCall_NotFound tests ending an unknown call
func TestEndCall_NotFound(t *testing.T) {
	calls := new(MockCallStore)
	presence := new(MockPresenceStore)
	notifier := new(MockNotifier)
	service := NewService(calls, presence, notifier)

	callID := uuid.New()

	// Setup expectations
	calls.On("GetByID", mock.Anything, callID).Return(nil, cockroach.ErrCallNotFound)

	// Execute
	err := service.EndCall(context.Background(), callID, 1)

	// Assert
	assert.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCallNotFound))
}

// TestCancelCall tests the CANCELLED terminal transition
func TestCancelCall(t *testing.T) {
	calls := new(MockCallStore)
	presence := new(MockPresenceStore)
	notifier := new(MockNotifier)
	service := NewService(calls, presence, notifier)

	call := activeCall(1, 2)

	// Setup expectations
	calls.On("GetByID", mock.Anything, call.ID).Return(call, nil)
	calls.On("Finalize", mock.Anything, call).Return(nil)
	presence.On("Clear", mock.Anything, int64(1)).Return(nil)
	presence.On("Clear", mock.Anything, int64(2)).Return(nil)

	// Execute
	err := service.CancelCall(context.Background(), call.ID)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, domain.CallStatusCancelled, call.Status)
	assert.NotNil(t, call.DurationSeconds)
	notifier.AssertNotCalled(t, "Deliver")
}

// TestEndActiveCallForUser tests disconnect finalization: only the
// partner is notified, with the disconnect reason
func TestEndActiveCallForUser(t *testing.T) {
	calls := new(MockCallStore)
	presence := new(MockPresenceStore)
	notifier := new(MockNotifier)
	service := NewService(calls, presence, notifier)

	call := activeCall(1, 2)

	// Setup expectations
	calls.On("FindActiveForUser", mock.Anything, int64(1)).Return(call, nil)
	calls.On("Finalize", mock.Anything, call).Return(nil)
	presence.On("Clear", mock.Anything, int64(1)).Return(nil)
	presence.On("Clear", mock.Anything, int64(2)).Return(nil)

	var payload domain.CallEndedPayload
	notifier.On("Deliver", mock.Anything, domain.EnvelopeCallEnded, int64(2), mock.Anything).
		Run(func(args mock.Arguments) {
			payload = args.Get(3).(domain.CallEndedPayload)
		}).Return(nil)

	// Execute
	err := service.EndActiveCallForUser(context.Background(), 1)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, domain.EndReasonPartnerDisconnected, payload.Reason)
	assert.Equal(t, int64(1), payload.PartnerID)
	notifier.AssertNotCalled(t, "Deliver", mock.Anything, domain.EnvelopeCallEnded, int64(1), mock.Anything)
	calls.AssertExpectations(t)
}

// TestEndActiveCallForUser_NoActiveCall tests that a user without a call
// is a quiet no-op
func TestEndActiveCallForUser_NoActiveCall(t *testing.T) {
	calls := new(MockCallStore)
	presence := new(MockPresenceStore)
	notifier := new(MockNotifier)
	service := NewService(calls, presence, notifier)

	// Setup expectations
	calls.On("FindActiveForUser", mock.Anything, int64(1)).Return(nil, cockroach.ErrCallNotFound)

	// Execute
	err := service.EndActiveCallForUser(context.Background(), 1)

	// Assert
	assert.NoError(t, err)
	calls.AssertNotCalled(t, "Finalize")
	notifier.AssertNotCalled(t, "Deliver")
}

// TestEndActiveCallForUser_LostRace tests that losing the finalize race
// to the partner's cleanup is not an error
func TestEndActiveCallForUser_LostRace(t *testing.T) {
	calls := new(MockCallStore)
	presence := new(MockPresenceStore)
	notifier := new(MockNotifier)
	service := NewService(calls, presence, notifier)

	call := activeCall(1, 2)

	// Setup expectations
	calls.On("FindActiveForUser", mock.Anything, int64(1)).Return(call, nil)
	calls.On("Finalize", mock.Anything, call).Return(cockroach.ErrNotActive)

	// Execute
	err := service.EndActiveCallForUser(context.Background(), 1)

	// Assert
	assert.NoError(t, err)
	notifier.AssertNotCalled(t, "Deliver")
}

// TestFinalizeActiveCallForUser tests the silent finalize: the call
// reaches its terminal state but nobody is notified
func TestFinalizeActiveCallForUser(t *testing.T) {
	calls := new(MockCallStore)
	presence := new(MockPresenceStore)
	notifier := new(MockNotifier)
	service := NewService(calls, presence, notifier)

	call := activeCall(1, 2)

	// Setup expectations
	calls.On("FindActiveForUser", mock.Anything, int64(1)).Return(call, nil)
	calls.On("Finalize", mock.Anything, call).Return(nil)
	presence.On("Clear", mock.Anything, int64(1)).Return(nil)
	presence.On("Clear", mock.Anything, int64(2)).Return(nil)

	// Execute
	ended, err := service.FinalizeActiveCallForUser(context.Background(), 1)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, call, ended)
	assert.Equal(t, domain.CallStatusCompleted, call.Status)
	notifier.AssertNotCalled(t, "Deliver")
	calls.AssertExpectations(t)
}

// TestFinalizeActiveCallForUser_NoActiveCall tests the nil result for a
// user without a call
func TestFinalizeActiveCallForUser_NoActiveCall(t *testing.T) {
	calls := new(MockCallStore)
	presence := new(MockPresenceStore)
	notifier := new(MockNotifier)
	service := NewService(calls, presence, notifier)

	// Setup expectations
	calls.On("FindActiveForUser", mock.Anything, int64(1)).Return(nil, cockroach.ErrCallNotFound)

	// Execute
	ended, err := service.FinalizeActiveCallForUser(context.Background(), 1)

	// Assert
	assert.NoError(t, err)
	assert.Nil(t, ended)
	notifier.AssertNotCalled(t, "Deliver")
}

// TestForwardSignal tests that signaling metadata reaches the partner
func TestForwardSignal(t *testing.T) {
	calls := new(MockCallStore)
	presence := new(MockPresenceStore)
	notifier := new(MockNotifier)
	service := NewService(calls, presence, notifier)

	call := activeCall(1, 2)

	// Setup expectations
	calls.On("GetByID", mock.Anything, call.ID).Return(call, nil)

	var payload domain.WebRTCSignalPayload
	notifier.On("Deliver", mock.Anything, domain.EnvelopeWebRTCSignal, int64(2), mock.Anything).
		Run(func(args mock.Arguments) {
			payload = args.Get(3).(domain.WebRTCSignalPayload)
		}).Return(nil)

	// Execute
	err := service.ForwardSignal(context.Background(), call.ID, 1, "offer", []byte(`{"sdp":"v=0"}`))

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, "offer", payload.Type)
	assert.Equal(t, int64(1), payload.SenderID)
	notifier.AssertExpectations(t)
}

// TestForwardSignal_EndedCall tests that signaling stops after the call
// reaches a terminal status
func TestForwardSignal_EndedCall(t *testing.T) {
	calls := new(MockCallStore)
	presence := new(MockPresenceStore)
	notifier := new(MockNotifier)
	service := NewService(calls, presence, notifier)

	call := activeCall(1, 2)
	call.Finalize(domain.CallStatusCompleted, time.Now().UTC())

	// Setup expectations
	calls.On("GetByID", mock.Anything, call.ID).Return(call, nil)

	// Execute
	err := service.ForwardSignal(context.Background(), call.ID, 1, "offer", nil)

	// Assert
	assert.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCallAlreadyEnded))
	notifier.AssertNotCalled(t, "Deliver")
}

// TestFinalize_DurationNeverNegative tests duration clamping when clocks
// skew and EndedAt precedes StartedAt
func TestFinalize_DurationNeverNegative(t *testing.T) {
	call := domain.NewCall(1, 2, domain.CallTypeVideo)
	call.StartedAt = time.Now().UTC().Add(5 * time.Minute)

	// Execute
	call.Finalize(domain.CallStatusCompleted, time.Now().UTC())

	// Assert
	assert.NotNil(t, call.DurationSeconds)
	assert.Equal(t, 0, *call.DurationSeconds)
}
