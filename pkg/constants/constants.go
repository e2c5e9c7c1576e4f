package constants

import "time"

// Shared store keys and key prefixes
const (
	// QueueKey is the Redis list holding waiting user ids, oldest first
	QueueKey = "matchmaking:queue"

	// PresenceKeyPrefix maps a user id to the partner they are paired with
	PresenceKeyPrefix = "matchmaking:in_call:"

	// SessionKeyPrefix maps a user id to their live transport session id
	SessionKeyPrefix = "matchmaking:session:"

	// RelayChannel is the broadcast Pub/Sub channel every instance subscribes to
	RelayChannel = "relay:broadcast"
)

// Matchmaking timing
const (
	// PresenceTTL bounds leaked in-call markers when cleanup never runs
	PresenceTTL = 30 * time.Minute

	// SessionTTL bounds leaked session records after an instance crash
	SessionTTL = 30 * time.Minute
)

// Relay retry policy: the originating instance re-checks local connectivity
// a fixed number of times, then drops the message
const (
	RelayMaxRetries = 3
	RelayRetryDelay = 100 * time.Millisecond
)

// WebSocket timing
const (
	WebSocketPingInterval  = 54 * time.Second
	WebSocketWriteTimeout  = 10 * time.Second
	WebSocketMaxMessageLen = 8192
)

// Chat limits
const (
	ChatMessageMaxLength = 2000
)
