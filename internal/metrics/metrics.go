package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Transaction execution
	// ============================================
	TransactionsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agreements_transactions_committed_total",
		Help: "Total number of committed transactions",
	})

	TransactionsReverted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agreements_transactions_reverted_total",
			Help: "Total number of reverted transactions by error name",
		},
		[]string{"error"},
	)

	TransactionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agreements_transaction_duration_seconds",
		Help:    "Transaction execution duration in seconds, including commit",
		Buckets: prometheus.DefBuckets,
	})

	// ============================================
	// Protocol activity
	// ============================================
	AgreementsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agreements_created_total",
			Help: "Total number of agreements created by template",
		},
		[]string{"template"},
	)

	ConditionsFulfilled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agreements_conditions_fulfilled_total",
			Help: "Total number of fulfilled conditions by condition contract",
		},
		[]string{"condition"},
	)

	CreditsMinted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agreements_credits_minted_total",
			Help: "Total credits minted by ledger",
		},
		[]string{"ledger"},
	)

	CreditsBurned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agreements_credits_burned_total",
			Help: "Total credits burned by ledger",
		},
		[]string{"ledger"},
	)

	// ============================================
	// Event fan-out
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agreements_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agreements_nats_messages_published_total",
			Help: "Total number of NATS messages published",
		},
		[]string{"event_type"},
	)

	NATSPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agreements_nats_publish_failures_total",
			Help: "Total number of NATS publish failures",
		},
		[]string{"event_type"},
	)

	EventLogWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agreements_event_log_writes_total",
		Help: "Total number of events persisted to the event log",
	})

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agreements_websocket_connections",
		Help: "Number of open WebSocket push connections",
	})

	// ============================================
	// Storage
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agreements_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	DBConnectionPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agreements_db_connection_pool_size",
		Help: "Maximum number of open database connections",
	})

	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agreements_db_connection_active",
		Help: "Number of database connections in use",
	})

	DBConnectionIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agreements_db_connection_idle",
		Help: "Number of idle database connections",
	})

	StateApplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agreements_state_apply_duration_seconds",
		Help:    "Duration of committing a transaction write set to the database",
		Buckets: prometheus.DefBuckets,
	})

	// ============================================
	// Custody
	// ============================================
	VaultBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agreements_vault_balance",
			Help: "Balance held by the payments vault by token (smallest unit)",
		},
		[]string{"token"},
	)
)
