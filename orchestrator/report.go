package orchestrator

import "time"

// Status is the outcome of one dataset in a cycle
type Status string

const (
	StatusLoaded  Status = "loaded"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// DatasetResult records what happened to one dataset
type DatasetResult struct {
	Event    string        `json:"event"`
	Status   Status        `json:"status"`
	Rows     int64         `json:"rows"`
	LoadID   string        `json:"load_id,omitempty"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report summarizes a completed cycle
type Report struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Results    []DatasetResult `json:"results"`
}

// Duration returns how long the cycle took
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Count returns the number of results with status s
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Rows returns the total rows loaded in the cycle
func (r *Report) Rows() int64 {
	var n int64
	for _, res := range r.Results {
		n += res.Rows
	}
	return n
}

// Result returns the result for event, if present
func (r *Report) Result(event string) (DatasetResult, bool) {
	for _, res := range r.Results {
		if res.Event == event {
			return res, true
		}
	}
	return DatasetResult{}, false
}
