package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/address"
	"marketplace/internal/ledger"
	"marketplace/internal/program"
)

// fakeExecutor records the execution of transactions and flags any two
// that overlapped on a writable account
type fakeExecutor struct {
	mu       sync.Mutex
	active   map[address.Address]int
	started  []*ledger.Transaction
	overlaps int
	delay    func(tx *ledger.Transaction) time.Duration
	fail     func(tx *ledger.Transaction) error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{active: make(map[address.Address]int)}
}

func (f *fakeExecutor) Execute(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error) {
	f.mu.Lock()
	f.started = append(f.started, tx)
	for _, meta := range tx.Instruction.Accounts {
		if meta.Writable {
			if f.active[meta.Address] > 0 {
				f.overlaps++
			}
			f.active[meta.Address]++
		}
	}
	f.mu.Unlock()

	if f.delay != nil {
		time.Sleep(f.delay(tx))
	}

	f.mu.Lock()
	for _, meta := range tx.Instruction.Accounts {
		if meta.Writable {
			f.active[meta.Address]--
		}
	}
	f.mu.Unlock()

	receipt := &ledger.Receipt{TxID: tx.ID(), Instruction: tx.Instruction.Name, Status: ledger.StatusSuccess}
	if f.fail != nil {
		if err := f.fail(tx); err != nil {
			receipt.Status = ledger.StatusFailed
			receipt.ErrorKind = program.KindOf(err)
			return receipt, err
		}
	}
	return receipt, nil
}

type recordingSink struct {
	mu        sync.Mutex
	sequences []uint64
}

func (s *recordingSink) Write(r *ledger.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences = append(s.sequences, r.Sequence)
	return nil
}

func acct(b byte) address.Address {
	var a address.Address
	a[0] = b
	return a
}

func testTx(nonce uint64, metas ...program.AccountMeta) *ledger.Transaction {
	return &ledger.Transaction{
		Instruction: program.Instruction{Name: "test", Accounts: metas},
		Nonce:       nonce,
	}
}

func write(a address.Address) program.AccountMeta {
	return program.AccountMeta{Address: a, Writable: true}
}

func read(a address.Address) program.AccountMeta {
	return program.AccountMeta{Address: a}
}

func startPipeline(t *testing.T, exec Executor, workers int, sinks ...Sink) *Pipeline {
	t.Helper()
	p := NewPipeline(Config{WorkerCount: workers, BufferSize: 16}, exec, sinks...)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() {
		_ = p.Stop(context.Background())
	})
	return p
}

func TestNewJobSplitsReadsAndWrites(t *testing.T) {
	a, b, c := acct(1), acct(2), acct(3)
	j := newJob(testTx(1, write(a), read(b), read(a), read(c), read(c)))

	assert.ElementsMatch(t, []address.Address{a}, j.writes)
	assert.ElementsMatch(t, []address.Address{b, c}, j.reads)
}

func TestConflictRules(t *testing.T) {
	a, b := acct(1), acct(2)
	p := &Pipeline{writers: map[address.Address]int{}, readers: map[address.Address]int{}}

	reader := newJob(testTx(1, read(a)))
	p.claim(reader)
	assert.False(t, p.conflicts(newJob(testTx(2, read(a)))), "readers share")
	assert.True(t, p.conflicts(newJob(testTx(3, write(a)))), "writer waits for reader")
	assert.False(t, p.conflicts(newJob(testTx(4, write(b)))))

	writer := newJob(testTx(5, write(b)))
	p.claim(writer)
	assert.True(t, p.conflicts(newJob(testTx(6, read(b)))), "reader waits for writer")

	p.release(reader)
	p.release(writer)
	assert.Zero(t, p.inFlight)
	assert.Empty(t, p.writers)
	assert.Empty(t, p.readers)
}

func TestSubmitReturnsReceipt(t *testing.T) {
	exec := newFakeExecutor()
	p := startPipeline(t, exec, 2)

	receipt, err := p.Submit(context.Background(), testTx(1, write(acct(1))))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Sequence)
	assert.Equal(t, ledger.StatusSuccess, receipt.Status)

	receipt, err = p.Submit(context.Background(), testTx(2, write(acct(1))))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), receipt.Sequence)
}

func TestSubmitReturnsRejection(t *testing.T) {
	exec := newFakeExecutor()
	exec.fail = func(*ledger.Transaction) error {
		return program.Errorf(program.KindSoldOut, "none left")
	}
	p := startPipeline(t, exec, 2)

	receipt, err := p.Submit(context.Background(), testTx(1, write(acct(1))))
	assert.ErrorIs(t, err, program.ErrSoldOut)
	require.NotNil(t, receipt)
	assert.Equal(t, program.KindSoldOut, receipt.ErrorKind)
}

func TestConflictingTransactionsNeverOverlap(t *testing.T) {
	exec := newFakeExecutor()
	exec.delay = func(*ledger.Transaction) time.Duration { return time.Millisecond }
	sink := &recordingSink{}
	p := startPipeline(t, exec, 8, sink)

	offering := acct(99)
	const n = 40

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sequence = make(map[*ledger.Transaction]uint64)
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := testTx(uint64(i), write(offering), write(acct(byte(i))))
			receipt, err := p.Submit(context.Background(), tx)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			sequence[tx] = receipt.Sequence
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Zero(t, exec.overlaps)
	require.Len(t, exec.started, n)

	// conflicting transactions start in submission order
	for i := 1; i < n; i++ {
		assert.Less(t, sequence[exec.started[i-1]], sequence[exec.started[i]])
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, seq := range sink.sequences {
		assert.Equal(t, uint64(i+1), seq)
	}
}

func TestIndependentTransactionsRunInParallel(t *testing.T) {
	exec := newFakeExecutor()
	both := make(chan struct{})
	var once sync.Once
	var arrived sync.WaitGroup
	arrived.Add(2)
	go func() {
		arrived.Wait()
		once.Do(func() { close(both) })
	}()

	exec.delay = func(*ledger.Transaction) time.Duration {
		arrived.Done()
		select {
		case <-both:
			return 0
		case <-time.After(5 * time.Second):
			return 0
		}
	}
	p := startPipeline(t, exec, 2)

	start := time.Now()
	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Submit(context.Background(), testTx(uint64(i), write(acct(byte(i+1)))))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Less(t, time.Since(start), 4*time.Second, "independent transactions should not wait for each other")
}

func TestOrdererReleasesInSequence(t *testing.T) {
	sink := &recordingSink{}
	o := NewOrderer(1, sink)

	jobs := make([]*job, 4)
	for i := range jobs {
		jobs[i] = &job{seq: uint64(i + 1), done: make(chan result, 1)}
	}
	deliver := func(j *job) {
		o.ProcessResult(&result{job: j, receipt: &ledger.Receipt{Sequence: j.seq}})
	}

	deliver(jobs[2])
	deliver(jobs[1])
	assert.Empty(t, sink.sequences)
	assert.Equal(t, 2, o.GetPendingCount())

	deliver(jobs[0])
	assert.Equal(t, []uint64{1, 2, 3}, sink.sequences)
	assert.Equal(t, uint64(4), o.GetNextExpected())

	deliver(jobs[3])
	assert.Equal(t, []uint64{1, 2, 3, 4}, sink.sequences)
	assert.Zero(t, o.GetPendingCount())
	for _, j := range jobs {
		assert.Len(t, j.done, 1)
	}
}

func TestStopDrainsAndRefuses(t *testing.T) {
	exec := newFakeExecutor()
	exec.delay = func(*ledger.Transaction) time.Duration { return 5 * time.Millisecond }
	sink := &recordingSink{}
	p := NewPipeline(Config{WorkerCount: 2, BufferSize: 8}, exec, sink)
	require.NoError(t, p.Start(context.Background()))

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Submit(context.Background(), testTx(uint64(i), write(acct(1))))
		}()
	}
	// let the submissions land before stopping
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.nextSeq == 7
	}, time.Second, time.Millisecond)

	require.NoError(t, p.Stop(context.Background()))
	wg.Wait()

	assert.Len(t, sink.sequences, 6)
	assert.False(t, p.IsRunning())

	_, err := p.Submit(context.Background(), testTx(100, write(acct(1))))
	assert.ErrorIs(t, err, ErrStopped)
	assert.Error(t, p.Start(context.Background()))
}
