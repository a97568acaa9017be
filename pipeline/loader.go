package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Evan-Kim2028/duckdb-pipe/dataset"
)

// LoadResult is the outcome of loading one dataset
type LoadResult struct {
	Event    string
	Skipped  bool
	Rows     int64
	Info     *LoadInfo
	Duration time.Duration
}

// Loader writes non-empty datasets through a channel
type Loader struct {
	mapping dataset.ColumnMapping
	logger  *zap.Logger
}

// NewLoader creates a loader that renames columns with mapping before loading
func NewLoader(mapping dataset.ColumnMapping, logger *zap.Logger) *Loader {
	if mapping == nil {
		mapping = dataset.DefaultColumnMapping
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{mapping: mapping, logger: logger}
}

// Load normalizes ds and merges it into the table named after the dataset.
// Empty datasets are skipped without touching storage. Errors are returned
// unchanged to the caller.
func (l *Loader) Load(ctx context.Context, ds *dataset.Dataset, ch *Channel) (*LoadResult, error) {
	start := time.Now()
	result := &LoadResult{Event: ds.Name}
	logger := l.logger.With(zap.String("event", ds.Name))

	if ds.IsEmpty() {
		logger.Info("no data to write, skipping table creation")
		result.Skipped = true
		result.Duration = time.Since(start)
		return result, nil
	}

	normalized := dataset.Normalize(ds, l.mapping)
	defer normalized.Release()

	info, err := ch.Run(ctx, normalized.Record, ds.Name)
	if err != nil {
		return nil, err
	}

	result.Info = info
	result.Rows = info.Rows
	result.Duration = time.Since(start)
	logger.Info("data loaded successfully",
		zap.String("table", info.Table),
		zap.Int64("rows", info.Rows),
		zap.String("load_id", info.LoadID),
		zap.Duration("duration", result.Duration))
	return result, nil
}
