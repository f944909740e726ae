package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-sync/internal/store"
	"portal-sync/internal/sync"
)

func sampleSnapshot() Snapshot {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sum := &sync.Summary{
		Kind:       sync.KindPeriodic,
		StartedAt:  at.Add(-time.Minute),
		FinishedAt: at,
		Reports:    []sync.Report{{Entity: sync.EntityCourses, Examined: 3, Created: 2, Errored: 1, Errors: []string{"course 1002: rejected"}}},
	}
	status := sync.StatusReport{
		State: sync.SyncState{Status: sync.PhaseSucceeded, LastSummary: sum},
		Entities: store.Stats{
			Courses: store.EntityStats{Total: 3, Synced: 2, Errored: 1},
		},
	}
	return NewSnapshot(status, nil, at)
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap := sampleSnapshot()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, snap))
	assert.False(t, bytes.HasPrefix(buf.Bytes(), []byte("{")), "payload is compressed")

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, snap.GeneratedAt.Equal(got.GeneratedAt))
	assert.Equal(t, snap.Status.Entities, got.Status.Entities)
	require.NotNil(t, got.LastSummary)
	assert.Equal(t, 2, got.LastSummary.Reports[0].Created)
	assert.Equal(t, []string{"course 1002: rejected"}, got.LastSummary.Reports[0].Errors)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(strings.NewReader("not brotli"))
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	snap := sampleSnapshot()

	p, err := WriteFile(dir, snap)
	require.NoError(t, err)
	assert.Equal(t, "portal-sync-20260301T120000Z.json.br", filepath.Base(p))

	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	got, err := Decode(f)
	require.NoError(t, err)
	assert.Equal(t, sync.PhaseSucceeded, got.Status.State.Status)
}

func TestWriteErrorsCSV(t *testing.T) {
	id := uuid.MustParse("6f1c2b9e-8a57-4d0e-9a43-0c2f5d6e7a81")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	remote := int64(42)
	recs := ErrorRecords([]store.SyncErrorRow{
		{Entity: "user", ID: id, RemoteID: &remote, Error: "invalid\nemail", LastSyncedAt: &at},
		{Entity: "enrollment", ID: id, Error: "course not linked"},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteErrorsCSV(&buf, recs))

	lines := strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\r\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ENTITY,ID,REMOTE_ID,LAST_SYNCED_AT,ERROR", lines[0])
	assert.Equal(t, "user,"+id.String()+",42,2026-03-01T12:00:00Z,invalid email", lines[1])
	assert.Equal(t, "enrollment,"+id.String()+",,,course not linked", lines[2])
}
