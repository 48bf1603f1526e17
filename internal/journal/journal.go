// Package journal keeps an append-only audit trail of transaction receipts
// as hourly zstd-compressed JSONL files.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"marketplace/internal/address"
	"marketplace/internal/ledger"
	"marketplace/internal/program"
)

// Prefix names every journal file: receipts-YYYY-MM-DD-HH.jsonl.zst
const Prefix = "receipts"

// Entry is one journal line
type Entry struct {
	ID          string            `json:"id"`
	Sequence    uint64            `json:"sequence"`
	TxID        string            `json:"tx_id"`
	Program     string            `json:"program"`
	Instruction string            `json:"instruction"`
	Status      ledger.Status     `json:"status"`
	ErrorKind   program.ErrorKind `json:"error_kind,omitempty"`
	Accounts    []address.Address `json:"accounts,omitempty"`
	Events      []program.Event   `json:"events,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Writer appends entries to the file of the current UTC hour
type Writer struct {
	baseDir string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewWriter creates a journal writing under baseDir
func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir, now: time.Now}
}

// Write records r. It satisfies pipeline.Sink.
func (w *Writer) Write(r *ledger.Receipt) error {
	return w.append(Entry{
		ID:          uuid.NewString(),
		Sequence:    r.Sequence,
		TxID:        r.TxID,
		Program:     r.Program,
		Instruction: r.Instruction,
		Status:      r.Status,
		ErrorKind:   r.ErrorKind,
		Accounts:    r.Accounts,
		Events:      r.Events,
		Timestamp:   r.Timestamp,
	})
}

func (w *Writer) append(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes and closes the current file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	f, err := os.OpenFile(Path(w.baseDir, hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

// Path is the file holding entries of hour (formatted 2006-01-02-15)
func Path(baseDir, hour string) string {
	return filepath.Join(baseDir, fmt.Sprintf("%s-%s.jsonl.zst", Prefix, hour))
}

// ReadFile decodes every entry of one journal file
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	var entries []Entry
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return entries, fmt.Errorf("failed to decode journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to read journal file: %w", err)
	}
	return entries, nil
}
