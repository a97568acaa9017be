package evm

import (
	"path/filepath"
	"sync"

	"github.com/Evan-Kim2028/duckdb-pipe/checkpoint"
)

// CursorPath returns where a pipeline keeps its EVM cursor
func CursorPath(pipelinesDir, pipelineName string) string {
	return filepath.Join(pipelinesDir, pipelineName, "sources", "evm_cursor.json")
}

type cursorFile struct {
	// NextBlock is the first block not yet delivered, per event
	NextBlock map[string]uint64 `json:"next_block"`
}

// cursor tracks per-event progress. Fetched ranges stay pending until acked.
type cursor struct {
	mu      sync.Mutex
	path    string
	start   uint64
	next    map[string]uint64
	pending map[string]uint64
}

func loadCursor(path string, start uint64) (*cursor, error) {
	var f cursorFile
	if _, err := checkpoint.Load(path, &f); err != nil {
		return nil, err
	}
	if f.NextBlock == nil {
		f.NextBlock = map[string]uint64{}
	}
	return &cursor{
		path:    path,
		start:   start,
		next:    f.NextBlock,
		pending: map[string]uint64{},
	}, nil
}

// from returns the first block to fetch for event
func (c *cursor) from(event string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.next[event]; ok && n > c.start {
		return n
	}
	return c.start
}

// fetched marks blocks up to and including to as delivered but not acked
func (c *cursor) fetched(event string, to uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[event] = to + 1
}

// ack commits the pending range for event. Acking an event with nothing
// pending is a no-op.
func (c *cursor) ack(event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, ok := c.pending[event]
	if !ok {
		return nil
	}
	delete(c.pending, event)
	c.next[event] = next
	return checkpoint.Save(c.path, cursorFile{NextBlock: c.next})
}

// reset drops every pending range
func (c *cursor) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = map[string]uint64{}
}
