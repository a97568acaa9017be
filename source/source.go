// Package source defines how the pipeline obtains Event Datasets.
package source

import (
	"context"

	"github.com/Evan-Kim2028/duckdb-pipe/dataset"
)

// Fetcher returns one dataset per event type, keyed by event name. A
// returned error aborts the cycle.
type Fetcher interface {
	Fetch(ctx context.Context) (map[string]*dataset.Dataset, error)
}

// Acknowledger is implemented by fetchers that track progress. Ack is called
// once an event's dataset has been loaded or skipped, so the next Fetch does
// not return the same rows.
type Acknowledger interface {
	Ack(eventName string) error
}

// Static is a Fetcher returning the same datasets on every call. Each Fetch
// retains the records, so callers release what they receive.
type Static map[string]*dataset.Dataset

// Fetch implements Fetcher
func (s Static) Fetch(context.Context) (map[string]*dataset.Dataset, error) {
	out := make(map[string]*dataset.Dataset, len(s))
	for name, ds := range s {
		if ds.Record != nil {
			ds.Record.Retain()
		}
		out[name] = dataset.New(ds.Name, ds.Record)
	}
	return out, nil
}
