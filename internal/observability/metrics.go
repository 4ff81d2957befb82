package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for FolioLedger.
type Metrics struct {
	// --- Core processing ---
	CoreCommandsApplied  *prometheus.CounterVec
	CoreCommandsRejected *prometheus.CounterVec
	CoreCommandDuration  *prometheus.HistogramVec
	CoreStateHashDur     prometheus.Histogram
	CoreSequence         prometheus.Gauge

	// --- Latency ---
	IngestToApply   *prometheus.HistogramVec
	ApplyToPersist  prometheus.Histogram
	NATSPullLatency *prometheus.HistogramVec
	PersistBatchDur prometheus.Histogram

	// --- Channels & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency & ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	CommandSequenceGap    *prometheus.CounterVec
	CommandOutOfOrder     *prometheus.CounterVec

	// --- Auctions ---
	AuctionsApproved prometheus.Counter
	AuctionsOpened   *prometheus.CounterVec
	AuctionBids      prometheus.Counter
	AuctionsClosed   prometheus.Counter

	// --- Fees ---
	FeePokes           prometheus.Counter
	FeeSharesAccrued   prometheus.Counter
	FeeDistributions   prometheus.Counter
	FeeRecipientsCount prometheus.Gauge

	// --- Rewards ---
	RewardAccruals      prometheus.Counter
	RewardClaims        prometheus.Counter
	RewardTokensTracked prometheus.Gauge

	// --- Persistence & snapshot ---
	PersistEventsWritten prometheus.Counter
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge
	SnapshotTaken        prometheus.Counter
	SnapshotDuration     prometheus.Histogram
	ReplayEventsTotal    prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		CoreCommandsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_core_commands_applied_total",
			Help: "Commands successfully applied by core",
		}, []string{"command_type"}),

		CoreCommandsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_core_commands_rejected_total",
			Help: "Commands rejected (dedup, gap, validation)",
		}, []string{"command_type", "reason"}),

		CoreCommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "folio_core_command_apply_duration_seconds",
			Help:    "Time to apply a single command in core",
			Buckets: latencyBuckets,
		}, []string{"command_type"}),

		CoreStateHashDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "folio_core_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "folio_core_sequence",
			Help: "Current global sequence number",
		}),

		IngestToApply: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "folio_ingest_to_apply_seconds",
			Help:    "NATS receive to core apply complete",
			Buckets: ingestBuckets,
		}, []string{"command_type"}),

		ApplyToPersist: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "folio_apply_to_persist_seconds",
			Help:    "Core emit to Postgres commit",
			Buckets: latencyBuckets,
		}),

		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "folio_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: ingestBuckets,
		}, []string{"subject"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "folio_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "folio_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "folio_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "folio_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_projection_drops_total",
			Help: "Outputs dropped due to full projection channel",
		}, []string{"projection"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_publish_drops_total",
			Help: "Outputs dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_persist_backpressure_total",
			Help: "Times core blocked on persist channel",
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"command_type", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "folio_dedup_lru_size",
			Help: "Idempotency LRU entry count",
		}),

		CommandSequenceGap: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_command_sequence_gap_total",
			Help: "Source sequence gaps detected",
		}, []string{"partition"}),

		CommandOutOfOrder: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_command_out_of_order_total",
			Help: "Out-of-order new commands rejected",
		}, []string{"partition"}),

		AuctionsApproved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_auctions_approved_total",
			Help: "Auctions approved",
		}),

		AuctionsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_auctions_opened_total",
			Help: "Auctions opened (mode: launcher/permissionless)",
		}, []string{"mode"}),

		AuctionBids: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_auction_bids_total",
			Help: "Bids filled",
		}),

		AuctionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_auctions_closed_total",
			Help: "Auctions explicitly closed",
		}),

		FeePokes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_fee_pokes_total",
			Help: "Fee accrual pokes applied",
		}),

		FeeSharesAccrued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_fee_shares_accrued_total",
			Help: "Fee share amounts accrued (D18 scaled down)",
		}),

		FeeDistributions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_fee_distributions_total",
			Help: "Fee distribution cranks",
		}),

		FeeRecipientsCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "folio_fee_recipients",
			Help: "Live fee recipient slots",
		}),

		RewardAccruals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_reward_accruals_total",
			Help: "Reward accrual commands applied",
		}),

		RewardClaims: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_reward_claims_total",
			Help: "Reward claims paid",
		}),

		RewardTokensTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "folio_reward_tokens_tracked",
			Help: "Live reward token slots",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_persist_events_written_total",
			Help: "Envelopes written to the event log",
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_persist_errors_total",
			Help: "Postgres write errors",
		}, []string{"kind"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_persist_retry_total",
			Help: "Postgres write retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "folio_persist_last_sequence",
			Help: "Last sequence durably committed",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_snapshot_taken_total",
			Help: "Snapshots persisted",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "folio_snapshot_duration_seconds",
			Help:    "Snapshot serialization + write duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		ReplayEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "folio_replay_events_total",
			Help: "Envelopes replayed during recovery",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_query_requests_total",
			Help: "Query API requests",
		}, []string{"endpoint"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "folio_query_duration_seconds",
			Help:    "Query API latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_query_errors_total",
			Help: "Query API errors",
		}, []string{"endpoint", "kind"}),
	}
}

// SetChannelMetrics updates channel utilization gauges.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
