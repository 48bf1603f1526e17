package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"marketplace/internal/program"
)

// maxLineBytes bounds one encoded transaction in a stream
const maxLineBytes = 1 << 20

// Submitter accepts signed transactions and returns their receipts
type Submitter interface {
	Submit(ctx context.Context, tx *Transaction) (*Receipt, error)
}

// StreamStats summarises one streamed batch
type StreamStats struct {
	Submitted int
	Succeeded int
	Rejected  int
}

// Streamer feeds newline-delimited JSON transactions to a submitter in order
type Streamer struct {
	submitter    Submitter
	stopOnReject bool
}

// NewStreamer creates a new Streamer instance. With stopOnReject the first
// program rejection ends the stream.
func NewStreamer(submitter Submitter, stopOnReject bool) *Streamer {
	return &Streamer{
		submitter:    submitter,
		stopOnReject: stopOnReject,
	}
}

// Run submits every transaction read from r until EOF. Program rejections
// are counted; malformed lines and infrastructure failures end the stream.
func (s *Streamer) Run(ctx context.Context, r io.Reader) (StreamStats, error) {
	var stats StreamStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		select {
		case <-ctx.Done():
			slog.Warn("Context cancelled, stopping streamer", "line", line)
			return stats, ctx.Err()
		default:
		}

		var tx Transaction
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&tx); err != nil {
			return stats, fmt.Errorf("line %d: failed to decode transaction: %w", line, err)
		}

		startTime := time.Now()
		receipt, err := s.submitter.Submit(ctx, &tx)
		stats.Submitted++

		var perr *program.Error
		switch {
		case err == nil:
			stats.Succeeded++
		case receipt != nil && errors.As(err, &perr) && perr.Kind != program.KindInternal:
			stats.Rejected++
			slog.Warn("Transaction rejected",
				"line", line,
				"tx_id", receipt.TxID,
				"kind", receipt.ErrorKind,
				"error", receipt.Error,
			)
			if s.stopOnReject {
				return stats, fmt.Errorf("line %d: %w", line, err)
			}
		default:
			return stats, fmt.Errorf("line %d: failed to submit transaction: %w", line, err)
		}

		// Log every 10 transactions in INFO, always in DEBUG
		if stats.Submitted%10 == 0 {
			slog.Info("Transactions streamed",
				"submitted", stats.Submitted,
				"rejected", stats.Rejected,
				"last_ms", time.Since(startTime).Milliseconds(),
			)
		} else {
			slog.Debug("Transaction streamed",
				"line", line,
				"tx_id", tx.ID(),
				"total_ms", time.Since(startTime).Milliseconds(),
			)
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read transaction stream: %w", err)
	}

	slog.Info("Stream complete",
		"submitted", stats.Submitted,
		"succeeded", stats.Succeeded,
		"rejected", stats.Rejected,
	)
	return stats, nil
}

// WriteTransactions encodes txs as a stream Run can read
func WriteTransactions(w io.Writer, txs ...*Transaction) error {
	enc := json.NewEncoder(w)
	for _, tx := range txs {
		if err := enc.Encode(tx); err != nil {
			return fmt.Errorf("failed to encode transaction %s: %w", tx.ID(), err)
		}
	}
	return nil
}
