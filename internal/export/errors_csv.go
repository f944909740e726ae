package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"portal-sync/internal/store"
)

// Keep header order stable; operators diff these files.
var errorsHeader = []string{
	"ENTITY",
	"ID",
	"REMOTE_ID",
	"LAST_SYNCED_AT",
	"ERROR",
}

// ErrorRecords converts store rows for the snapshot.
func ErrorRecords(rows []store.SyncErrorRow) []ErrorRecord {
	out := make([]ErrorRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, ErrorRecord{
			Entity:       r.Entity,
			ID:           r.ID.String(),
			RemoteID:     r.RemoteID,
			Error:        r.Error,
			LastSyncedAt: r.LastSyncedAt,
		})
	}
	return out
}

// WriteErrorsCSV writes failed records, one per line.
func WriteErrorsCSV(w io.Writer, recs []ErrorRecord) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(errorsHeader); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write(toErrorRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func toErrorRow(r ErrorRecord) []string {
	remote := ""
	if r.RemoteID != nil {
		remote = strconv.FormatInt(*r.RemoteID, 10)
	}
	at := ""
	if r.LastSyncedAt != nil {
		at = r.LastSyncedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		r.Entity,         // ENTITY
		r.ID,             // ID
		remote,           // REMOTE_ID
		at,               // LAST_SYNCED_AT
		oneLine(r.Error), // ERROR
	}
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
