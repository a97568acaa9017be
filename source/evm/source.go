// Package evm fetches contract event logs over Ethereum JSON-RPC and groups
// them into one dataset per event type.
package evm

import (
	"context"
	"math/big"
	"sort"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Evan-Kim2028/duckdb-pipe/config"
	"github.com/Evan-Kim2028/duckdb-pipe/dataset"
)

// Client is the subset of ethclient.Client the source needs
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Source implements source.Fetcher and source.Acknowledger
type Source struct {
	client        Client
	closeFn       func()
	specs         []*EventSpec
	cursor        *cursor
	maxBlockRange uint64
	confirmations uint64
	concurrency   int
	logger        *zap.Logger
	mem           memory.Allocator
}

// Dial connects to cfg.RPCURL and builds a source for the configured
// contracts.
func Dial(ctx context.Context, cfg config.SourceConfig, cursorPath string, logger *zap.Logger) (*Source, error) {
	specs, err := LoadEventSpecs(cfg.Contracts)
	if err != nil {
		return nil, err
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", cfg.RPCURL)
	}
	src, err := New(client, specs, cfg, cursorPath, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	src.closeFn = client.Close
	return src, nil
}

// New builds a source over an existing client
func New(client Client, specs []*EventSpec, cfg config.SourceConfig, cursorPath string, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cur, err := loadCursor(cursorPath, cfg.StartBlock)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load cursor")
	}

	maxRange := cfg.MaxBlockRange
	if maxRange == 0 {
		maxRange = config.DefaultMaxBlockRange
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = config.DefaultConcurrency
	}

	return &Source{
		client:        client,
		specs:         specs,
		cursor:        cur,
		maxBlockRange: maxRange,
		confirmations: cfg.Confirmations,
		concurrency:   concurrency,
		logger:        logger,
		mem:           memory.DefaultAllocator,
	}, nil
}

// Events returns the configured dataset names
func (s *Source) Events() []string {
	names := make([]string, len(s.specs))
	for i, spec := range s.specs {
		names[i] = spec.Name
	}
	return names
}

// Fetch returns one dataset per configured event covering the blocks after
// the event's cursor, bounded by the confirmed head and the max block range.
// Events already caught up yield an empty dataset. Any RPC failure fails the
// whole fetch.
func (s *Source) Fetch(ctx context.Context) (map[string]*dataset.Dataset, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get block number")
	}
	var safe uint64
	if head > s.confirmations {
		safe = head - s.confirmations
	}

	// ranges fetched by an earlier cycle but never acked are fetched again
	s.cursor.reset()

	results := make([]*dataset.Dataset, len(s.specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, spec := range s.specs {
		g.Go(func() error {
			ds, err := s.fetchEvent(gctx, spec, safe)
			if err != nil {
				return err
			}
			results[i] = ds
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, ds := range results {
			ds.Release()
		}
		s.cursor.reset()
		return nil, err
	}

	out := make(map[string]*dataset.Dataset, len(results))
	for _, ds := range results {
		out[ds.Name] = ds
	}
	return out, nil
}

func (s *Source) fetchEvent(ctx context.Context, spec *EventSpec, safe uint64) (*dataset.Dataset, error) {
	b := dataset.NewBuilder(spec.Name, spec.Schema(), s.mem)
	defer b.Release()

	from := s.cursor.from(spec.Name)
	if from > safe {
		return b.Build(), nil
	}
	to := safe
	if from+s.maxBlockRange-1 < to {
		to = from + s.maxBlockRange - 1
	}

	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{spec.Address},
		Topics:    [][]common.Hash{{spec.Event.ID}},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to filter %s logs in blocks %d-%d", spec.Name, from, to)
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	logger := s.logger.With(zap.String("event", spec.Name))
	for _, lg := range logs {
		row, err := spec.decode(lg)
		if err == nil {
			err = b.AppendRow(row...)
		}
		if err != nil {
			logger.Warn("skipping undecodable log",
				zap.String("tx_hash", lg.TxHash.Hex()),
				zap.Uint("log_index", lg.Index),
				zap.Error(err))
		}
	}

	s.cursor.fetched(spec.Name, to)
	logger.Debug("fetched logs",
		zap.Uint64("from_block", from),
		zap.Uint64("to_block", to),
		zap.Int("rows", b.Len()))
	return b.Build(), nil
}

// Ack advances eventName's cursor past the range returned by the last Fetch
func (s *Source) Ack(eventName string) error {
	return s.cursor.ack(eventName)
}

// Close releases the RPC connection
func (s *Source) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}
