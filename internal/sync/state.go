package sync

import (
	"maps"
	"time"

	"portal-sync/internal/store"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// SyncState describes the most recent pass of one Engine. It is held by the
// Engine instance, so independent engines never share it.
type SyncState struct {
	Status      Phase              `json:"status"`
	Kind        Kind               `json:"kind,omitempty"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
	LastSuccess map[Kind]time.Time `json:"last_success,omitempty"`
	LastSummary *Summary           `json:"last_summary,omitempty"`
}

// Ready reports whether any pass has completed without a pass-level error.
// A periodic pass pulls everything an initial pass does, so it counts too.
func (s SyncState) Ready() bool {
	return len(s.LastSuccess) > 0
}

func (s SyncState) clone() SyncState {
	out := s
	out.LastSuccess = maps.Clone(s.LastSuccess)
	if s.LastSummary != nil {
		sum := *s.LastSummary
		out.LastSummary = &sum
	}
	return out
}

// StatusReport is the health view returned by GetSyncStatus.
type StatusReport struct {
	State    SyncState   `json:"state"`
	Entities store.Stats `json:"entities"`
}
