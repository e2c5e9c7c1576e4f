package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Matchmaking metrics for monitoring the queue, pairing and call lifecycle
var (
	MatchmakingQueueJoinTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchmaking_queue_join_total",
		Help: "Total number of join-queue requests",
	}, []string{"status"}) // "ok", "rejected", "error"

	MatchmakingQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matchmaking_queue_size",
		Help: "Last observed size of the shared waiting queue",
	})

	MatchmakingPairTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchmaking_pair_total",
		Help: "Total number of successful pairings",
	})

	MatchmakingInvariantViolationTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchmaking_invariant_violation_total",
		Help: "Total number of detected pairing invariant violations",
	})

	MatchmakingStalePresenceRecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchmaking_stale_presence_recovered_total",
		Help: "Total number of stale in-call markers cleared on re-queue",
	})

	CallEndedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_ended_total",
		Help: "Total number of calls moved to a terminal status",
	}, []string{"status", "reason"}) // status: "completed", "cancelled"

	CallDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "call_duration_seconds",
		Help:    "Duration of finished calls",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	CleanupRunTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchmaking_cleanup_run_total",
		Help: "Total number of disconnect cleanup runs",
	}, []string{"trigger"}) // "logout", "disconnect"
)

// Relay metrics for monitoring cross-instance delivery
var (
	RelayDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_delivered_total",
		Help: "Total number of envelopes delivered to a local connection",
	}, []string{"path"}) // "local", "pubsub", "retry"

	RelayPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_published_total",
		Help: "Total number of envelopes published to the broadcast channel",
	}, []string{"status"}) // "ok", "error"

	RelayRetryScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_retry_scheduled_total",
		Help: "Total number of retry attempts scheduled by the origin instance",
	})

	RelayDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_dropped_total",
		Help: "Total number of envelopes dropped after exhausting retries",
	})
)

// WebSocket metrics
var (
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections",
		Help: "Current number of active WebSocket connections on this instance",
	})

	WebSocketMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_messages_total",
		Help: "Total number of WebSocket messages",
	}, []string{"direction"}) // "inbound", "outbound"

	WebSocketClientDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_client_message_dropped_total",
		Help: "Total number of messages dropped to slow clients",
	}, []string{"reason"})
)
