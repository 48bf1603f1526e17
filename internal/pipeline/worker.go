package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Worker executes the jobs the dispatcher hands it
type Worker struct {
	id       int
	executor Executor
}

// NewWorker creates a new pipeline worker
func NewWorker(id int, executor Executor) *Worker {
	return &Worker{id: id, executor: executor}
}

// Process runs one job. Rejections are results, not worker failures.
func (w *Worker) Process(ctx context.Context, j *job) result {
	start := time.Now()

	slog.Debug("Worker processing transaction",
		"worker_id", w.id,
		"sequence", j.seq,
		"tx_id", j.tx.ID(),
	)

	receipt, err := w.executor.Execute(ctx, j.tx)
	if receipt != nil {
		receipt.Sequence = j.seq
	}

	r := result{
		job:            j,
		receipt:        receipt,
		err:            err,
		workerID:       w.id,
		processingTime: time.Since(start),
	}

	slog.Debug("Worker completed transaction",
		"worker_id", w.id,
		"sequence", j.seq,
		"error", err,
		"duration_ms", r.processingTime.Milliseconds(),
	)
	return r
}
