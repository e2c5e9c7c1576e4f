package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeType identifies the kind of payload an envelope carries.
// The set is closed: every relay consumer switches exhaustively over it.
type EnvelopeType string

const (
	EnvelopeQueueStatus  EnvelopeType = "status"
	EnvelopeMatchFound   EnvelopeType = "match-found"
	EnvelopeCallEnded    EnvelopeType = "call-ended"
	EnvelopeWebRTCSignal EnvelopeType = "webrtc-signal"
	EnvelopeChat         EnvelopeType = "chat"
	EnvelopeTyping       EnvelopeType = "typing"
	EnvelopeError        EnvelopeType = "error"
)

// Call-ended reasons carried in CallEndedPayload
const (
	EndReasonCallEnded           = "call_ended"
	EndReasonPartnerDisconnected = "partner_disconnected"
	EndReasonPartnerNextPerson   = "partner_next_person"
)

// Envelope is the relay's message wrapper. It is published on the shared
// broadcast channel and consumed exactly once by whichever instance holds
// the target's live connection.
type Envelope struct {
	MessageID      string          `json:"message_id"`
	Type           EnvelopeType    `json:"type"`
	TargetUserID   int64           `json:"target_user_id"`
	Destination    string          `json:"destination"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
	OriginInstance string          `json:"origin_instance"`
}

// QueueStatusPayload tells a waiting user their queue state
type QueueStatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// MatchFoundPayload notifies a user that a partner was found
type MatchFoundPayload struct {
	CallID   uuid.UUID `json:"call_id"`
	PeerID   int64     `json:"peer_id"`
	PeerName string    `json:"peer_name"`
}

// CallEndedPayload notifies a participant that their call reached a
// terminal status
type CallEndedPayload struct {
	CallID    uuid.UUID `json:"call_id"`
	Reason    string    `json:"reason"`
	PartnerID int64     `json:"partner_id,omitempty"`
}

// WebRTCSignalPayload forwards signaling metadata between peers.
// Media itself never passes through the backend.
type WebRTCSignalPayload struct {
	Type     string          `json:"type"` // offer, answer, ice_candidate
	SenderID int64           `json:"sender_id"`
	CallID   uuid.UUID       `json:"call_id"`
	Data     json.RawMessage `json:"data"`
}

// ChatPayload delivers a persisted chat message to the partner
type ChatPayload struct {
	MessageID  uuid.UUID `json:"message_id"`
	CallID     uuid.UUID `json:"call_id"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	SentAt     time.Time `json:"sent_at"`
}

// TypingPayload carries a typing indicator
type TypingPayload struct {
	CallID   uuid.UUID `json:"call_id"`
	SenderID int64     `json:"sender_id"`
	IsTyping bool      `json:"is_typing"`
}

// ErrorPayload surfaces a request failure to the user
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEnvelope wraps a typed payload for delivery to targetUserID.
// A fresh message id is assigned on every publish.
func NewEnvelope(envType EnvelopeType, targetUserID int64, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", envType, err)
	}

	return &Envelope{
		MessageID:    uuid.New().String(),
		Type:         envType,
		TargetUserID: targetUserID,
		Destination:  "/queue/" + string(envType),
		Payload:      data,
		Timestamp:    time.Now().UTC(),
	}, nil
}
