package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Evan-Kim2028/duckdb-pipe/config"
	"github.com/Evan-Kim2028/duckdb-pipe/dataset"
	"github.com/Evan-Kim2028/duckdb-pipe/store"
)

func testPipelineConfig(t *testing.T) config.PipelineConfig {
	dir := t.TempDir()
	return config.PipelineConfig{
		Name:         "mev_commit_testnet",
		DBPath:       filepath.Join(dir, "db", "events.duckdb"),
		PipelinesDir: filepath.Join(dir, "pipelines"),
	}
}

// transfers builds a dataset that carries both the log metadata block_number
// and an event argument named blockNumber.
func transfers(t *testing.T, rows int, extra ...string) *dataset.Dataset {
	t.Helper()
	fields := []arrow.Field{
		{Name: "block_number", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "blockNumber", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "from", Type: arrow.BinaryTypes.String},
	}
	for _, e := range extra {
		fields = append(fields, arrow.Field{Name: e, Type: arrow.BinaryTypes.String})
	}
	b := dataset.NewBuilder("TransferEvent", arrow.NewSchema(fields, nil), memory.NewGoAllocator())
	defer b.Release()
	for i := 0; i < rows; i++ {
		vals := []any{uint64(1000 + i), uint64(20 + i), "0xabc"}
		for range extra {
			vals = append(vals, "x")
		}
		require.NoError(t, b.AppendRow(vals...))
	}
	return b.Build()
}

func openStore(t *testing.T, cfg config.PipelineConfig) *store.DB {
	t.Helper()
	db, err := store.Open(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoaderSkipsEmptyDataset(t *testing.T) {
	cfg := testPipelineConfig(t)
	core, logs := observer.New(zapcore.InfoLevel)
	loader := NewLoader(nil, zap.New(core))
	ch := NewFactory(cfg, nil).OpenChannel("SwapEvent")

	res, err := loader.Load(context.Background(), dataset.New("SwapEvent", nil), ch)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	entries := logs.FilterMessage("no data to write, skipping table creation").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "SwapEvent", entries[0].ContextMap()["event"])

	_, err = os.Stat(cfg.DBPath)
	assert.True(t, os.IsNotExist(err), "skipped datasets must not touch storage")
}

func TestLoaderAppliesMappingAndAppends(t *testing.T) {
	cfg := testPipelineConfig(t)
	require.NoError(t, store.Initialize(cfg.DBPath))
	core, logs := observer.New(zapcore.InfoLevel)
	loader := NewLoader(dataset.DefaultColumnMapping, zap.New(core))
	factory := NewFactory(cfg, nil)
	ctx := context.Background()

	ds := transfers(t, 3)
	defer ds.Release()
	res, err := loader.Load(ctx, ds, factory.OpenChannel(ds.Name))
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, []string{"block_number", "blockNumber", "from"}, ds.ColumnNames(), "caller's dataset is untouched")

	more := transfers(t, 2, "memo")
	defer more.Release()
	_, err = loader.Load(ctx, more, factory.OpenChannel(more.Name))
	require.NoError(t, err)

	db := openStore(t, cfg)
	cols, err := db.Columns(ctx, "mev_commit_testnet_dataset", "TransferEvent")
	require.NoError(t, err)
	assert.Equal(t, []string{"block_number", "l1_block_number", "from", LoadIDColumn, "memo"}, cols)

	n, err := db.CountRows(ctx, "mev_commit_testnet_dataset", "TransferEvent")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	assert.Equal(t, 2, logs.FilterMessage("data loaded successfully").Len())

	st, err := LoadState(cfg.PipelinesDir, cfg.Name)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Tables["TransferEvent"].Loads)
	assert.Equal(t, int64(5), st.Tables["TransferEvent"].Rows)
	assert.Equal(t, "mev_commit_testnet_dataset", st.DatasetName)

	normalized, err := os.ReadDir(filepath.Join(cfg.PipelinesDir, cfg.Name, "load", normalizedDir))
	require.NoError(t, err)
	assert.Empty(t, normalized, "completed packages are removed")
}

func TestLoaderCollisionWithoutMapping(t *testing.T) {
	cfg := testPipelineConfig(t)
	require.NoError(t, store.Initialize(cfg.DBPath))
	loader := NewLoader(dataset.ColumnMapping{}, nil)

	ds := transfers(t, 1)
	defer ds.Release()
	_, err := loader.Load(context.Background(), ds, NewFactory(cfg, nil).OpenChannel(ds.Name))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnCollision))

	db := openStore(t, cfg)
	exists, err := db.TableExists(context.Background(), "mev_commit_testnet_dataset", "TransferEvent")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRetainedLoadPackage(t *testing.T) {
	cfg := testPipelineConfig(t)
	cfg.RetainLoadPackages = true
	require.NoError(t, store.Initialize(cfg.DBPath))

	ds := transfers(t, 1)
	defer ds.Release()
	res, err := NewLoader(nil, nil).Load(context.Background(), ds, NewFactory(cfg, nil).OpenChannel(ds.Name))
	require.NoError(t, err)

	kept := filepath.Join(cfg.PipelinesDir, cfg.Name, "load", loadedDir, res.Info.LoadID, "TransferEvent.parquet")
	_, err = os.Stat(kept)
	assert.NoError(t, err)
}

func TestOpenChannel(t *testing.T) {
	cfg := testPipelineConfig(t)
	cfg.DatasetName = "events"
	f := NewFactory(cfg, nil)

	a := f.OpenChannel("A")
	b := f.OpenChannel("A")
	assert.NotSame(t, a, b)
	assert.Equal(t, "mev_commit_testnet", a.PipelineName)
	assert.Equal(t, DestinationDuckDB, a.Destination)
	assert.Equal(t, "events", a.DatasetName)
	assert.Equal(t, "A", a.EventName)

	_, err := os.Stat(cfg.PipelinesDir)
	assert.True(t, os.IsNotExist(err))
}

func TestChannelRejectsPathLikeTableNames(t *testing.T) {
	cfg := testPipelineConfig(t)
	require.NoError(t, store.Initialize(cfg.DBPath))
	ch := NewFactory(cfg, nil).OpenChannel("TransferEvent")

	ds := transfers(t, 1)
	defer ds.Release()
	normalized := dataset.Normalize(ds, dataset.DefaultColumnMapping)
	defer normalized.Release()

	for _, table := range []string{"../escape", "a/b", "..", ""} {
		_, err := ch.Run(context.Background(), normalized.Record, table)
		assert.Error(t, err, table)
	}

	_, err := os.Stat(filepath.Join(cfg.PipelinesDir, cfg.Name, "escape.parquet"))
	assert.True(t, os.IsNotExist(err))

	info, err := ch.Run(context.Background(), normalized.Record, "TransferEvent")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Rows)
}
