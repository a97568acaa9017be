package pipeline

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/Evan-Kim2028/duckdb-pipe/checkpoint"
)

// State is the pipeline state kept next to the load packages
type State struct {
	PipelineName string                `json:"pipeline_name"`
	Destination  string                `json:"destination"`
	DatasetName  string                `json:"dataset_name"`
	LastLoadID   string                `json:"last_load_id,omitempty"`
	LastLoadAt   time.Time             `json:"last_load_at,omitempty"`
	Tables       map[string]TableState `json:"tables"`
}

// TableState accumulates per-table load totals
type TableState struct {
	Loads      int64     `json:"loads"`
	Rows       int64     `json:"rows"`
	Columns    []string  `json:"columns"`
	LastLoadID string    `json:"last_load_id"`
	LastLoadAt time.Time `json:"last_load_at"`
}

var stateMu sync.Mutex

// StatePath returns the state file location for a pipeline
func StatePath(pipelinesDir, pipelineName string) string {
	return filepath.Join(pipelinesDir, pipelineName, "state.json")
}

// LoadState reads the pipeline state. A pipeline that never loaded returns
// an empty state.
func LoadState(pipelinesDir, pipelineName string) (*State, error) {
	st := &State{PipelineName: pipelineName, Tables: map[string]TableState{}}
	if _, err := checkpoint.Load(StatePath(pipelinesDir, pipelineName), st); err != nil {
		return nil, err
	}
	if st.Tables == nil {
		st.Tables = map[string]TableState{}
	}
	return st, nil
}

func (c *Channel) recordState(info *LoadInfo) error {
	stateMu.Lock()
	defer stateMu.Unlock()

	st, err := LoadState(c.PipelinesDir, c.PipelineName)
	if err != nil {
		return err
	}
	st.Destination = c.Destination
	st.DatasetName = c.DatasetName
	st.LastLoadID = info.LoadID
	st.LastLoadAt = info.FinishedAt

	ts := st.Tables[info.Table]
	ts.Loads++
	ts.Rows += info.Rows
	ts.Columns = info.Columns
	ts.LastLoadID = info.LoadID
	ts.LastLoadAt = info.FinishedAt
	st.Tables[info.Table] = ts

	return checkpoint.Save(StatePath(c.PipelinesDir, c.PipelineName), st)
}
