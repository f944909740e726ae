package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/andybalholm/brotli"

	"portal-sync/internal/sync"
)

// Snapshot is the offline copy of GetSyncStatus handed to operators.
type Snapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Status      sync.StatusReport `json:"status"`
	LastSummary *sync.Summary     `json:"last_summary,omitempty"`
	Errors      []ErrorRecord     `json:"errors,omitempty"`
}

// ErrorRecord is one local record whose last sync attempt failed.
type ErrorRecord struct {
	Entity       string     `json:"entity"`
	ID           string     `json:"id"`
	RemoteID     *int64     `json:"remote_id,omitempty"`
	Error        string     `json:"error"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

func NewSnapshot(status sync.StatusReport, errs []ErrorRecord, now time.Time) Snapshot {
	return Snapshot{
		GeneratedAt: now.UTC(),
		Status:      status,
		LastSummary: status.State.LastSummary,
		Errors:      errs,
	}
}

// Encode writes s as brotli-compressed JSON.
func Encode(w io.Writer, s Snapshot) error {
	bw := brotli.NewWriterLevel(w, brotli.DefaultCompression)
	enc := json.NewEncoder(bw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		_ = bw.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}
	return nil
}

func Decode(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(brotli.NewReader(r)).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// Bytes returns the encoded snapshot.
func Bytes(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the snapshot name for s, e.g. portal-sync-20260301T120000Z.json.br.
func FileName(s Snapshot) string {
	return "portal-sync-" + s.GeneratedAt.UTC().Format("20060102T150405Z") + ".json.br"
}

// WriteFile stores the encoded snapshot in dir and returns its path.
func WriteFile(dir string, s Snapshot) (string, error) {
	data, err := Bytes(s)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	p := filepath.Join(dir, FileName(s))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return p, nil
}
