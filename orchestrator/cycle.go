// Package orchestrator runs the fetch-and-load cycle and repeats it on a
// fixed interval.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Evan-Kim2028/duckdb-pipe/dataset"
	"github.com/Evan-Kim2028/duckdb-pipe/metrics"
	"github.com/Evan-Kim2028/duckdb-pipe/pipeline"
	"github.com/Evan-Kim2028/duckdb-pipe/source"
	"github.com/Evan-Kim2028/duckdb-pipe/store"
)

// ChannelOpener opens a load channel per dataset
type ChannelOpener interface {
	OpenChannel(eventName string) *pipeline.Channel
}

// DatasetLoader loads one dataset through a channel
type DatasetLoader interface {
	Load(ctx context.Context, ds *dataset.Dataset, ch *pipeline.Channel) (*pipeline.LoadResult, error)
}

// Cycle performs one full fetch-and-load pass
type Cycle struct {
	DBPath     string
	Fetcher    source.Fetcher
	Channels   ChannelOpener
	Loader     DatasetLoader
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Initialize func(path string) error
}

// Run initializes the store, fetches all datasets and loads each one.
// Store and fetch failures are returned; a failing dataset is recorded in
// the report and the remaining datasets still load.
func (c *Cycle) Run(ctx context.Context) (*Report, error) {
	logger := c.logger()
	report := &Report{StartedAt: time.Now()}

	initialize := c.Initialize
	if initialize == nil {
		initialize = store.Initialize
	}
	if err := initialize(c.DBPath); err != nil {
		c.Metrics.RecordCycle(false, time.Since(report.StartedAt), time.Now())
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("fetching events")
	fetchStart := time.Now()
	datasets, err := c.Fetcher.Fetch(ctx)
	c.Metrics.RecordFetchDuration(time.Since(fetchStart))
	if err != nil {
		c.Metrics.RecordCycle(false, time.Since(report.StartedAt), time.Now())
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	names := make([]string, 0, len(datasets))
	for name := range datasets {
		names = append(names, name)
	}
	sort.Strings(names)

	ack, _ := c.Fetcher.(source.Acknowledger)
	for _, name := range names {
		ds := datasets[name]
		res := c.process(ctx, name, ds)
		ds.Release()

		if res.Status != StatusFailed && ack != nil {
			if err := ack.Ack(name); err != nil {
				logger.Warn("failed to acknowledge dataset", zap.String("event", name), zap.Error(err))
			}
		}
		c.Metrics.RecordDataset(string(res.Status))
		report.Results = append(report.Results, res)
	}

	report.FinishedAt = time.Now()
	c.Metrics.RecordCycle(true, report.Duration(), report.FinishedAt)
	logger.Info("data pipeline cycle completed",
		zap.Int("datasets", len(report.Results)),
		zap.Int("loaded", report.Count(StatusLoaded)),
		zap.Int("skipped", report.Count(StatusSkipped)),
		zap.Int("failed", report.Count(StatusFailed)),
		zap.Int64("rows", report.Rows()),
		zap.Duration("duration", report.Duration()))
	return report, nil
}

// process loads one dataset, turning errors and panics into a failed result
func (c *Cycle) process(ctx context.Context, name string, ds *dataset.Dataset) (res DatasetResult) {
	start := time.Now()
	res = DatasetResult{Event: name}

	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("panic loading %s: %v", name, r)
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			res.Error = res.Err.Error()
			c.logger().Error("failed to load dataset",
				zap.String("event", name), zap.Error(res.Err))
		}
	}()

	if ds == nil {
		ds = dataset.New(name, nil)
	}
	ch := c.Channels.OpenChannel(name)
	lr, err := c.Loader.Load(ctx, ds, ch)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	if lr.Skipped {
		res.Status = StatusSkipped
		return res
	}
	res.Status = StatusLoaded
	res.Rows = lr.Rows
	if lr.Info != nil {
		res.LoadID = lr.Info.LoadID
	}
	c.Metrics.RecordLoad(name, lr.Rows, lr.Duration)
	return res
}

func (c *Cycle) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
