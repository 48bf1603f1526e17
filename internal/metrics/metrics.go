package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Throughput metrics - Track instruction volume
var (
	TransactionsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_transactions_submitted_total",
		Help: "Total number of transactions submitted for execution",
	})

	InstructionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_instructions_total",
			Help: "Total number of instructions executed by program, instruction and status",
		},
		[]string{"program", "instruction", "status"},
	)

	InstructionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_instruction_errors_total",
			Help: "Total number of rejected instructions by error kind",
		},
		[]string{"kind"},
	)
)

// Economy metrics - Track value moved by committed instructions
var (
	LamportsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_lamports_settled_total",
		Help: "Total lamports paid to vendors and sellers",
	})

	RoyaltiesPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_royalties_paid_lamports_total",
		Help: "Total royalty lamports paid to vendors on resale",
	})

	OfferingsSold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_offerings_sold_total",
		Help: "Total number of service assets minted by purchases",
	})

	ListingsSold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_listings_sold_total",
		Help: "Total number of listings bought",
	})
)

// Performance metrics - Track processing speed and latency
var (
	InstructionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketplace_instruction_duration_seconds",
		Help:    "Time taken to execute a transaction end to end",
		Buckets: prometheus.DefBuckets,
	})

	StoreCommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketplace_store_commit_duration_seconds",
		Help:    "Time taken to commit a transaction's accounts to the store",
		Buckets: prometheus.DefBuckets,
	})
)

// Pipeline metrics - Track the transaction scheduler
var (
	PipelineWorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_pipeline_worker_count",
		Help: "Number of active pipeline workers",
	})

	PipelineQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_pipeline_queue_depth",
		Help: "Number of receipts waiting to be released in order",
	})

	PipelineBlocked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_pipeline_blocked",
		Help: "Number of transactions held back by an account conflict",
	})

	LastSequence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_last_sequence",
		Help: "Sequence number of the last released receipt",
	})
)

// Error metrics - Track infrastructure failures
var (
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_errors_total",
			Help: "Total number of infrastructure errors by component",
		},
		[]string{"component"},
	)
)
