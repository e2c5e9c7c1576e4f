package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(EnvelopeMatchFound, 42, MatchFoundPayload{PeerID: 7, PeerName: "Bob"})

	require.NoError(t, err)
	assert.NotEmpty(t, env.MessageID)
	assert.Equal(t, EnvelopeMatchFound, env.Type)
	assert.Equal(t, int64(42), env.TargetUserID)
	assert.Equal(t, "/queue/match-found", env.Destination)
	assert.False(t, env.Timestamp.IsZero())

	var payload MatchFoundPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, int64(7), payload.PeerID)
	assert.Equal(t, "Bob", payload.PeerName)
}

func TestNewEnvelope_FreshMessageIDs(t *testing.T) {
	env1, err := NewEnvelope(EnvelopeTyping, 1, TypingPayload{IsTyping: true})
	require.NoError(t, err)
	env2, err := NewEnvelope(EnvelopeTyping, 1, TypingPayload{IsTyping: true})
	require.NoError(t, err)

	assert.NotEqual(t, env1.MessageID, env2.MessageID)
}
