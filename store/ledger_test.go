package store

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_RecordOnce(t *testing.T) {
	l := NewMemoryLedger()

	require.NoError(t, l.Record(Entry{SessionID: "s1", Principal: "A", RecordedAt: epoch}))
	require.ErrorIs(t, l.Record(Entry{SessionID: "s1", Principal: "A", RecordedAt: epoch}), ErrAlreadyRecorded)

	// The same principal in another session is a separate mark.
	require.NoError(t, l.Record(Entry{SessionID: "s2", Principal: "A", RecordedAt: epoch}))
}

func TestMemoryLedger_ConcurrentRecord(t *testing.T) {
	l := NewMemoryLedger()

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		dupes    atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Record(Entry{SessionID: "s1", Principal: "A", RecordedAt: epoch})
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, ErrAlreadyRecorded):
				dupes.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, accepted.Load())
	require.EqualValues(t, 99, dupes.Load())
	require.Len(t, l.List("s1"), 1)
}

func TestMemoryLedger_ListOrdered(t *testing.T) {
	l := NewMemoryLedger()

	require.NoError(t, l.Record(Entry{SessionID: "s1", Principal: "late", RecordedAt: epoch.Add(2 * time.Second)}))
	require.NoError(t, l.Record(Entry{SessionID: "s1", Principal: "early", RecordedAt: epoch}))
	require.NoError(t, l.Record(Entry{SessionID: "s1", Principal: "tie", RecordedAt: epoch}))

	entries := l.List("s1")
	require.Len(t, entries, 3)
	require.Equal(t, "early", entries[0].Principal)
	require.Equal(t, "tie", entries[1].Principal)
	require.Equal(t, "late", entries[2].Principal)

	// Callers get a copy.
	entries[0].Principal = "mutated"
	require.Equal(t, "early", l.List("s1")[0].Principal)

	require.Nil(t, l.List("unknown"))
}

func TestMemoryLedger_Drop(t *testing.T) {
	l := NewMemoryLedger()

	require.NoError(t, l.Record(Entry{SessionID: "s1", Principal: "A", RecordedAt: epoch}))
	l.Drop("s1")
	require.Empty(t, l.List("s1"))

	l.Drop("never-existed")
}
