package match

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"paircall-backend/internal/domain"
	apperrors "paircall-backend/pkg/errors"
	"paircall-backend/pkg/response"
)

// MatchmakingService is the subset of matchmaking the REST surface exposes
type MatchmakingService interface {
	QueueSize(ctx context.Context) (int64, error)
	WaitingUsers(ctx context.Context) ([]int64, error)
	IsConnected(ctx context.Context, userID int64) (bool, error)
}

// CallService is the subset of call lifecycle the REST surface exposes
type CallService interface {
	EndCall(ctx context.Context, callID uuid.UUID, requestingUserID int64) error
	CancelCall(ctx context.Context, callID uuid.UUID) error
}

// CallStore reads call records for the stats and detail endpoints
type CallStore interface {
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	CountActive(ctx context.Context) (int64, error)
}

// ChatService reads chat history
type ChatService interface {
	History(ctx context.Context, callID uuid.UUID, userID int64, limit int) ([]*domain.Message, error)
}

// Handler exposes the REST side of matchmaking: stats, call records,
// and the HTTP fallbacks for ending calls. The real-time flow lives on
// the WebSocket.
type Handler struct {
	matchmaking MatchmakingService
	calls       CallService
	callStore   CallStore
	chat        ChatService
}

// NewHandler creates a new match handler
func NewHandler(matchmaking MatchmakingService, calls CallService, callStore CallStore, chat ChatService) *Handler {
	return &Handler{
		matchmaking: matchmaking,
		calls:       calls,
		callStore:   callStore,
		chat:        chat,
	}
}

// Stats returns current queue depth and active call count
// GET /api/v1/match/stats
func (h *Handler) Stats(c *gin.Context) {
	queueSize, err := h.matchmaking.QueueSize(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	activeCalls, err := h.callStore.CountActive(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	waiting, err := h.matchmaking.WaitingUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"queue_size":    queueSize,
		"active_calls":  activeCalls,
		"waiting_users": waiting,
	})
}

// Presence reports whether a user currently holds a live connection on
// any instance, per the shared session records
// GET /api/v1/users/:id/presence
func (h *Handler) Presence(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid user id")
		return
	}

	connected, err := h.matchmaking.IsConnected(c.Request.Context(), targetID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user_id":   targetID,
		"connected": connected,
	})
}

// GetCall returns a single call record
// GET /api/v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	callID, ok := h.callID(c)
	if !ok {
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	call, err := h.callStore.GetByID(c.Request.Context(), callID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, isParticipant := call.PartnerOf(userID); !isParticipant {
		response.Error(c, http.StatusForbidden, string(apperrors.ErrCodeValidation),
			"user is not a participant of this call")
		return
	}

	response.Success(c, http.StatusOK, call)
}

// EndCall finalizes a call as COMPLETED
// POST /api/v1/calls/:id/end
func (h *Handler) EndCall(c *gin.Context) {
	callID, ok := h.callID(c)
	if !ok {
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	if err := h.calls.EndCall(c.Request.Context(), callID, userID); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"call_id": callID, "status": domain.CallStatusCompleted})
}

// CancelCall finalizes a never-connected call as CANCELLED
// POST /api/v1/calls/:id/cancel
func (h *Handler) CancelCall(c *gin.Context) {
	callID, ok := h.callID(c)
	if !ok {
		return
	}

	if err := h.calls.CancelCall(c.Request.Context(), callID); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"call_id": callID, "status": domain.CallStatusCancelled})
}

// History returns the most recent chat messages of a call
// GET /api/v1/calls/:id/messages
func (h *Handler) History(c *gin.Context) {
	callID, ok := h.callID(c)
	if !ok {
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.ValidationError(c, "invalid limit")
			return
		}
		limit = parsed
	}

	messages, err := h.chat.History(c.Request.Context(), callID, userID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) callID(c *gin.Context) (uuid.UUID, bool) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid call id")
		return uuid.Nil, false
	}
	return callID, true
}

func (h *Handler) userID(c *gin.Context) (int64, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "missing authentication")
		return 0, false
	}
	userID, ok := userIDVal.(int64)
	if !ok {
		response.InternalError(c, "invalid user identity")
		return 0, false
	}
	return userID, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)
	response.Error(c, appErr.StatusCode, string(appErr.Code), appErr.Message)
}
