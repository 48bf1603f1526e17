// Package pipeline schedules submitted transactions onto parallel workers.
//
// Every submission gets a sequence number. The dispatcher hands jobs to
// workers strictly in sequence order, holding a job back while an earlier
// in-flight job writes an account it touches (or reads an account it
// writes). Non-conflicting transactions run in parallel; results are
// released in sequence order by the Orderer.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"marketplace/internal/address"
	"marketplace/internal/ledger"
	"marketplace/internal/metrics"
)

// Pipeline manages parallel transaction execution
type Pipeline struct {
	config   Config
	executor Executor
	sinks    []Sink

	// Submission state
	mu        sync.Mutex
	nextSeq   uint64
	isRunning bool

	workers []*Worker
	orderer *Orderer

	intake   chan *job    // Accepted, not yet dispatched
	work     chan *job    // Dispatched to workers
	finished chan *job    // Completed, account claims to release
	results  chan *result // Completed, waiting for the orderer
	done     chan struct{}

	// Account claims of in-flight jobs. Owned by the dispatcher goroutine.
	writers  map[address.Address]int
	readers  map[address.Address]int
	inFlight int
}

// NewPipeline creates a new pipeline instance
func NewPipeline(config Config, executor Executor, sinks ...Sink) *Pipeline {
	return &Pipeline{
		config:   config,
		executor: executor,
		sinks:    sinks,
		nextSeq:  1,
	}
}

// Start launches the dispatcher, workers and orderer. Transactions run
// under ctx; cancel it only after Stop has drained the pipeline.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("pipeline is already running")
	}
	if p.done != nil {
		return fmt.Errorf("pipeline cannot be restarted")
	}

	workerCount := p.config.WorkerCount
	if workerCount == 0 {
		workerCount = int(float64(runtime.NumCPU()) * 0.75) // Use 75% of cores
		if workerCount < 2 {
			workerCount = 2
		}
	}
	bufferSize := p.config.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1
	}

	slog.Info("🚀 Starting transaction pipeline",
		"worker_count", workerCount,
		"buffer_size", bufferSize,
		"cpu_cores", runtime.NumCPU(),
	)

	p.workers = make([]*Worker, workerCount)
	for i := range workerCount {
		p.workers[i] = NewWorker(i, p.executor)
	}
	p.orderer = NewOrderer(p.nextSeq, p.sinks...)

	p.intake = make(chan *job, bufferSize)
	p.work = make(chan *job)
	p.finished = make(chan *job, workerCount)
	p.results = make(chan *result, workerCount)
	p.done = make(chan struct{})
	p.writers = make(map[address.Address]int)
	p.readers = make(map[address.Address]int)

	var wg sync.WaitGroup
	for _, worker := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			p.runWorker(ctx, w)
		}(worker)
	}

	go p.dispatch()
	go p.runOrderer()

	go func() {
		wg.Wait()
		close(p.results)
	}()

	p.isRunning = true
	metrics.PipelineWorkerCount.Set(float64(workerCount))
	return nil
}

// Submit queues tx and waits until its receipt is released in order.
// A submission whose caller gives up after it was accepted still runs.
func (p *Pipeline) Submit(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error) {
	j := newJob(tx)
	if err := p.enqueue(ctx, j); err != nil {
		return nil, err
	}
	metrics.TransactionsSubmitted.Inc()

	select {
	case r := <-j.done:
		return r.receipt, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// enqueue assigns the next sequence number and hands j to the dispatcher.
// The lock keeps sequence numbers and intake order identical.
func (p *Pipeline) enqueue(ctx context.Context, j *job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isRunning {
		return ErrStopped
	}

	j.seq = p.nextSeq
	select {
	case p.intake <- j:
		p.nextSeq++
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch moves jobs from intake to workers in sequence order
func (p *Pipeline) dispatch() {
	defer close(p.work)

	for {
		var (
			j  *job
			ok bool
		)
		select {
		case j, ok = <-p.intake:
			if !ok {
				for p.inFlight > 0 {
					p.release(<-p.finished)
				}
				return
			}
		case f := <-p.finished:
			p.release(f)
			continue
		}

		if p.conflicts(j) {
			metrics.PipelineBlocked.Set(1)
			slog.Debug("Pipeline: Holding conflicting transaction",
				"sequence", j.seq,
				"in_flight", p.inFlight,
			)
			for p.conflicts(j) {
				p.release(<-p.finished)
			}
			metrics.PipelineBlocked.Set(0)
		}

		p.claim(j)
		for sent := false; !sent; {
			select {
			case p.work <- j:
				sent = true
			case f := <-p.finished:
				p.release(f)
			}
		}
	}
}

// conflicts reports whether j touches an account an in-flight job writes,
// or writes an account an in-flight job reads
func (p *Pipeline) conflicts(j *job) bool {
	for _, addr := range j.writes {
		if p.writers[addr] > 0 || p.readers[addr] > 0 {
			return true
		}
	}
	for _, addr := range j.reads {
		if p.writers[addr] > 0 {
			return true
		}
	}
	return false
}

func (p *Pipeline) claim(j *job) {
	for _, addr := range j.writes {
		p.writers[addr]++
	}
	for _, addr := range j.reads {
		p.readers[addr]++
	}
	p.inFlight++
}

func (p *Pipeline) release(j *job) {
	for _, addr := range j.writes {
		if p.writers[addr]--; p.writers[addr] == 0 {
			delete(p.writers, addr)
		}
	}
	for _, addr := range j.reads {
		if p.readers[addr]--; p.readers[addr] == 0 {
			delete(p.readers, addr)
		}
	}
	p.inFlight--
}

// runWorker runs a single worker goroutine
func (p *Pipeline) runWorker(ctx context.Context, worker *Worker) {
	for j := range p.work {
		r := worker.Process(ctx, j)
		p.finished <- j
		p.results <- &r
	}
}

// runOrderer runs the orderer goroutine
func (p *Pipeline) runOrderer() {
	defer close(p.done)
	for r := range p.results {
		p.orderer.ProcessResult(r)
	}
}

// Stop refuses new submissions and waits until every accepted transaction
// has been executed and released
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	close(p.intake)
	last := p.nextSeq - 1
	p.mu.Unlock()

	slog.Info("🛑 Stopping transaction pipeline", "last_sequence", last)

	select {
	case <-p.done:
	case <-ctx.Done():
		return fmt.Errorf("pipeline drain interrupted: %w", ctx.Err())
	}

	metrics.PipelineWorkerCount.Set(0)
	metrics.PipelineQueueDepth.Set(0)
	slog.Info("Pipeline stopped", "last_sequence", last)
	return nil
}

// IsRunning returns whether the pipeline accepts submissions
func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isRunning
}
