package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSQLiteArchive(t *testing.T) *SQLiteArchive {
	t.Helper()

	archive, err := NewSQLiteArchive(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })
	return archive
}

func archivedSession(id string) ArchivedSession {
	return ArchivedSession{ID: id, ClassID: "cs101", OwnerID: "prof-ada", EndedAt: epoch.Add(time.Hour)}
}

func TestSQLiteArchive_RoundTrip(t *testing.T) {
	archive := newTestSQLiteArchive(t)
	ctx := context.Background()

	marked := Entry{
		SessionID:    "s1",
		Principal:    "A",
		RecordedAt:   epoch,
		HasLocation:  true,
		Latitude:     12.9716,
		Longitude:    77.5946,
		DeviceIP:     "10.0.0.7",
		DeviceUA:     "Mozilla/5.0",
		Browser:      "Chrome 129.0",
		OS:           "Android 14",
		DeviceType:   "mobile",
		NetIP:        "203.0.113.7",
		NetCity:      "Bengaluru",
		NetCountry:   "India",
		NetLatitude:  12.97,
		NetLongitude: 77.59,
		NetMismatch:  true,
	}
	require.NoError(t, archive.SaveAttendance(ctx, archivedSession("s1"), []Entry{
		marked,
		{SessionID: "s1", Principal: "B", RecordedAt: epoch.Add(time.Second)},
	}))
	require.NoError(t, archive.SaveAttendance(ctx, archivedSession("s2"), []Entry{
		{SessionID: "s2", Principal: "A", RecordedAt: epoch},
	}))

	session, got, err := archive.ListAttendance(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", session.ID)
	require.Equal(t, "cs101", session.ClassID)
	require.Equal(t, "prof-ada", session.OwnerID)
	require.True(t, session.EndedAt.Equal(epoch.Add(time.Hour)))
	require.Len(t, got, 2)

	require.True(t, got[0].RecordedAt.Equal(epoch))
	got[0].RecordedAt = marked.RecordedAt
	require.Equal(t, marked, got[0])

	require.Equal(t, "B", got[1].Principal)
	require.False(t, got[1].HasLocation)

	_, _, err = archive.ListAttendance(ctx, "unknown")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteArchive_EmptyTally(t *testing.T) {
	archive := newTestSQLiteArchive(t)
	ctx := context.Background()

	require.NoError(t, archive.SaveAttendance(ctx, archivedSession("s1"), nil))

	session, got, err := archive.ListAttendance(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "prof-ada", session.OwnerID)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestSQLiteArchive_SaveTwice(t *testing.T) {
	archive := newTestSQLiteArchive(t)
	ctx := context.Background()

	entries := []Entry{{SessionID: "s1", Principal: "A", RecordedAt: epoch}}
	require.NoError(t, archive.SaveAttendance(ctx, archivedSession("s1"), entries))
	require.NoError(t, archive.SaveAttendance(ctx, archivedSession("s1"), entries))
	require.NoError(t, archive.SaveAttendance(ctx, archivedSession("s1"), nil))

	_, got, err := archive.ListAttendance(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
}
