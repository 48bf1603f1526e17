package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/address"
	"marketplace/internal/ledger"
	"marketplace/internal/program"
)

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	var touched address.Address
	touched[0] = 7

	require.NoError(t, w.Write(&ledger.Receipt{
		TxID:        "abc",
		Sequence:    1,
		Program:     "ServiceMarketplace",
		Instruction: "buyService",
		Status:      ledger.StatusSuccess,
		Accounts:    []address.Address{touched},
		Events:      []program.Event{{Name: program.EventOfferingSold, Account: touched, Amount: 5}},
		Timestamp:   now,
	}))
	require.NoError(t, w.Write(&ledger.Receipt{
		TxID:        "def",
		Sequence:    2,
		Instruction: "buyService",
		Status:      ledger.StatusFailed,
		ErrorKind:   program.KindSoldOut,
		Timestamp:   now,
	}))

	require.NoError(t, w.Close())

	entries, err := ReadFile(filepath.Join(dir, "receipts-2026-03-14-09.jsonl.zst"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, uint64(1), entries[0].Sequence)
	assert.Equal(t, "abc", entries[0].TxID)
	assert.Equal(t, []address.Address{touched}, entries[0].Accounts)
	assert.Equal(t, uint64(5), entries[0].Events[0].Amount)
	assert.Equal(t, program.KindSoldOut, entries[1].ErrorKind)
	assert.True(t, now.Equal(entries[1].Timestamp))

	_, err = uuid.Parse(entries[0].ID)
	assert.NoError(t, err)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	now := time.Date(2026, 3, 14, 9, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	require.NoError(t, w.Write(&ledger.Receipt{Sequence: 1}))
	now = now.Add(2 * time.Minute)
	require.NoError(t, w.Write(&ledger.Receipt{Sequence: 2}))
	require.NoError(t, w.Write(&ledger.Receipt{Sequence: 3}))
	require.NoError(t, w.Close())

	first, err := ReadFile(Path(dir, "2026-03-14-09"))
	require.NoError(t, err)
	second, err := ReadFile(Path(dir, "2026-03-14-10"))
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 2)
	assert.Equal(t, uint64(3), second[1].Sequence)
}

func TestWriterAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for seq := uint64(1); seq <= 2; seq++ {
		w := NewWriter(dir)
		w.now = func() time.Time { return now }
		require.NoError(t, w.Write(&ledger.Receipt{Sequence: seq}))
		require.NoError(t, w.Close())
	}

	entries, err := ReadFile(Path(dir, "2026-03-14-09"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(2), entries[1].Sequence)
}
