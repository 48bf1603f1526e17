package pipeline

import (
	"log/slog"

	"marketplace/internal/metrics"
)

// Orderer receives results from workers and releases them in sequence order.
// Workers finish out of order; sinks and submitters see receipts in the
// order transactions were accepted.
type Orderer struct {
	sinks []Sink

	nextExpected uint64             // Next sequence to release
	pending      map[uint64]*result // Buffered out-of-order results
}

// NewOrderer creates an orderer whose first released sequence is start
func NewOrderer(start uint64, sinks ...Sink) *Orderer {
	return &Orderer{
		sinks:        sinks,
		nextExpected: start,
		pending:      make(map[uint64]*result),
	}
}

// ProcessResult buffers r and releases every result that is now in order
func (o *Orderer) ProcessResult(r *result) {
	o.pending[r.job.seq] = r

	slog.Debug("Orderer received result",
		"sequence", r.job.seq,
		"worker_id", r.workerID,
		"pending_count", len(o.pending),
		"next_expected", o.nextExpected,
	)

	for {
		next, ok := o.pending[o.nextExpected]
		if !ok {
			break
		}
		o.release(next)
		delete(o.pending, o.nextExpected)
		o.nextExpected++
	}

	metrics.PipelineQueueDepth.Set(float64(len(o.pending)))
}

func (o *Orderer) release(r *result) {
	if r.receipt != nil {
		for _, sink := range o.sinks {
			if err := sink.Write(r.receipt); err != nil {
				metrics.ErrorsTotal.WithLabelValues("journal").Inc()
				slog.Warn("Orderer: Failed to write receipt",
					"sequence", r.job.seq,
					"tx_id", r.receipt.TxID,
					"error", err,
				)
			}
		}
	}

	metrics.LastSequence.Set(float64(r.job.seq))
	r.job.done <- *r
}

// GetPendingCount returns the number of results waiting on an earlier sequence
func (o *Orderer) GetPendingCount() int {
	return len(o.pending)
}

// GetNextExpected returns the next sequence the orderer is waiting for
func (o *Orderer) GetNextExpected() uint64 {
	return o.nextExpected
}
