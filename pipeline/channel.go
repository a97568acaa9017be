// Package pipeline moves Event Datasets into the store: it opens per-dataset
// load channels, normalizes identifiers, stages Parquet load packages and
// merges them into DuckDB.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Evan-Kim2028/duckdb-pipe/config"
	"github.com/Evan-Kim2028/duckdb-pipe/store"
)

// DestinationDuckDB is the only supported destination
const DestinationDuckDB = "duckdb"

// Channel is the per-dataset load handle
type Channel struct {
	PipelineName       string
	Destination        string
	PipelinesDir       string
	DatabasePath       string
	DatasetName        string
	EventName          string
	RetainLoadPackages bool

	logger *zap.Logger
	mem    memory.Allocator
}

// LoadInfo describes a completed load
type LoadInfo struct {
	LoadID     string
	Pipeline   string
	Dataset    string
	Table      string
	Rows       int64
	Columns    []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Factory opens channels sharing one pipeline configuration
type Factory struct {
	cfg    config.PipelineConfig
	logger *zap.Logger
}

// NewFactory creates a channel factory for the configured pipeline
func NewFactory(cfg config.PipelineConfig, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger}
}

// OpenChannel returns a fresh channel for eventName. No storage is touched.
func (f *Factory) OpenChannel(eventName string) *Channel {
	return &Channel{
		PipelineName:       f.cfg.Name,
		Destination:        DestinationDuckDB,
		PipelinesDir:       f.cfg.PipelinesDir,
		DatabasePath:       f.cfg.DBPath,
		DatasetName:        f.cfg.Dataset(),
		EventName:          eventName,
		RetainLoadPackages: f.cfg.RetainLoadPackages,
		logger:             f.logger.With(zap.String("event", eventName)),
		mem:                memory.DefaultAllocator,
	}
}

// Run merges rec into table. The table is created on first load and extended
// with new columns on later ones. rec is not released.
func (c *Channel) Run(ctx context.Context, rec arrow.Record, table string) (*LoadInfo, error) {
	info := &LoadInfo{
		LoadID:    uuid.NewString(),
		Pipeline:  c.PipelineName,
		Dataset:   c.DatasetName,
		Table:     table,
		StartedAt: time.Now().UTC(),
	}

	prepared, err := c.prepare(rec, info.LoadID)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize %s: %w", table, err)
	}
	defer prepared.Release()
	info.Columns = fieldNames(prepared.Schema())

	pkg := loadPackage{
		root:   filepath.Join(c.PipelinesDir, c.PipelineName, "load"),
		loadID: info.LoadID,
	}
	file, err := pkg.write(table, prepared)
	if err != nil {
		return nil, fmt.Errorf("failed to write load package for %s: %w", table, err)
	}
	c.logger.Debug("load package written",
		zap.String("load_id", info.LoadID),
		zap.String("file", file),
		zap.Int64("rows", prepared.NumRows()))

	db, err := store.Open(c.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Merge(ctx, store.MergeRequest{
		Schema:   c.DatasetName,
		Table:    table,
		File:     file,
		LoadID:   info.LoadID,
		Pipeline: c.PipelineName,
	})
	if err != nil {
		return nil, err
	}
	info.Rows = rows
	info.FinishedAt = time.Now().UTC()

	if err := c.recordState(info); err != nil {
		c.logger.Warn("failed to update pipeline state", zap.Error(err))
	}
	if err := pkg.complete(c.RetainLoadPackages); err != nil {
		c.logger.Warn("failed to complete load package",
			zap.String("load_id", info.LoadID), zap.Error(err))
	}
	return info, nil
}

// prepare renames columns to destination identifiers and appends the load id
func (c *Channel) prepare(rec arrow.Record, loadID string) (arrow.Record, error) {
	schema := rec.Schema()
	names, err := NormalizeIdentifiers(fieldNames(schema))
	if err != nil {
		return nil, err
	}

	fields := make([]arrow.Field, 0, len(names)+1)
	for i, f := range schema.Fields() {
		f.Name = names[i]
		fields = append(fields, f)
	}
	fields = append(fields, arrow.Field{Name: LoadIDColumn, Type: arrow.BinaryTypes.String})

	lb := array.NewStringBuilder(c.mem)
	defer lb.Release()
	n := int(rec.NumRows())
	lb.Reserve(n)
	for i := 0; i < n; i++ {
		lb.Append(loadID)
	}
	loadIDs := lb.NewArray()
	defer loadIDs.Release()

	cols := append(append([]arrow.Array{}, rec.Columns()...), loadIDs)
	md := schema.Metadata()
	return array.NewRecord(arrow.NewSchema(fields, &md), cols, rec.NumRows()), nil
}

func fieldNames(schema *arrow.Schema) []string {
	names := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}
	return names
}
