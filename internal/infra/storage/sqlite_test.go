package storage

import (
	"path/filepath"
	"testing"

	"scalper_go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordAndQuery(t *testing.T) {
	j := setupTestJournal(t)

	j.Record(domain.JournalEntry{Kind: domain.JournalSubmit, Symbol: "BTCUSDT", ClientOrderID: "scalp_aB-1-1", Side: "BUY", Price: "99.90"})
	j.Record(domain.JournalEntry{Kind: domain.JournalFill, Symbol: "BTCUSDT", ClientOrderID: "scalp_aB-1-1", Status: "FILLED"})
	j.Record(domain.JournalEntry{Kind: domain.JournalLiquidation, Symbol: "BTCUSDT", ClientOrderID: "sxdeadbeef", Side: "SELL"})
	j.Flush()

	all, err := j.Recent("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, domain.JournalLiquidation, all[0].Kind, "newest first")
	assert.False(t, all[0].CreatedAt.IsZero())

	fills, err := j.Recent(domain.JournalFill, 10)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "FILLED", fills[0].Status)

	history, err := j.ByClientID("scalp_aB-1-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.JournalSubmit, history[0].Kind)
	assert.Equal(t, "99.90", history[0].Price)
}

func TestJournal_CloseFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "journal.db")
	j, err := NewJournal(path)
	require.NoError(t, err)

	for i := 0; i < defaultBatch+5; i++ {
		j.Record(domain.JournalEntry{Kind: domain.JournalCancel, Symbol: "BTCUSDT"})
	}
	require.NoError(t, j.Close())
	require.NoError(t, j.Close(), "second close is a no-op")
	assert.NotPanics(t, func() { j.Record(domain.JournalEntry{Kind: domain.JournalCancel}) })

	reopened, err := NewJournal(path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Recent(domain.JournalCancel, 1000)
	require.NoError(t, err)
	assert.Len(t, entries, defaultBatch+5)
	assert.Zero(t, j.Dropped())
}
