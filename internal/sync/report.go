package sync

import (
	"fmt"
	"time"
)

type Entity string

const (
	EntityCourses             Entity = "courses"
	EntityUsers               Entity = "users"
	EntityEnrollments         Entity = "enrollments"
	EntityCompletions         Entity = "completions"
	EntityOutboundUsers       Entity = "outbound_users"
	EntityOutboundEnrollments Entity = "outbound_enrollments"
)

const maxErrorSamples = 20

// Report holds the counters of one reconciler pass. Per-entity failures are
// counted in Errored; Err is set only when the pass could not run at all
// (for example its source listing failed).
type Report struct {
	Entity   Entity        `json:"entity"`
	Examined int           `json:"examined"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Errored  int           `json:"errored"`
	Errors   []string      `json:"errors,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

func newReport(e Entity) Report {
	return Report{Entity: e}
}

func (r *Report) fail(format string, args ...any) {
	r.Errored++
	if len(r.Errors) < maxErrorSamples {
		r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	}
}

// Merge adds the counters of o to r. Err is kept from r unless unset.
func (r *Report) Merge(o Report) {
	r.Examined += o.Examined
	r.Created += o.Created
	r.Updated += o.Updated
	r.Skipped += o.Skipped
	r.Errored += o.Errored
	for _, e := range o.Errors {
		if len(r.Errors) >= maxErrorSamples {
			break
		}
		r.Errors = append(r.Errors, e)
	}
	if r.Err == nil {
		r.Err = o.Err
	}
}

// Changed reports whether the pass wrote anything.
func (r Report) Changed() bool {
	return r.Created > 0 || r.Updated > 0
}

func (r Report) String() string {
	return fmt.Sprintf("%s: examined=%d created=%d updated=%d skipped=%d errored=%d",
		r.Entity, r.Examined, r.Created, r.Updated, r.Skipped, r.Errored)
}

type Kind string

const (
	KindInitial  Kind = "initial"
	KindPeriodic Kind = "periodic"
)

// Summary aggregates the reports of one orchestrated pass.
type Summary struct {
	Kind       Kind      `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Reports    []Report  `json:"reports"`
}

// Report returns the report for e, if that pass ran.
func (s Summary) Report(e Entity) (Report, bool) {
	for _, r := range s.Reports {
		if r.Entity == e {
			return r, true
		}
	}
	return Report{}, false
}

// Totals sums every report.
func (s Summary) Totals() Report {
	total := Report{Entity: "total"}
	for _, r := range s.Reports {
		total.Merge(r)
	}
	total.Duration = s.FinishedAt.Sub(s.StartedAt)
	return total
}
