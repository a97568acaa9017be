package dataset

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// ColumnMapping renames known-problematic column identifiers
type ColumnMapping map[string]string

// DefaultColumnMapping keeps the event's own blockNumber argument apart from
// the block_number column the snake_case naming convention derives for log
// metadata.
var DefaultColumnMapping = ColumnMapping{
	"blockNumber": "l1_block_number",
}

// With returns a new mapping holding m plus extra. Entries in extra win.
func (m ColumnMapping) With(extra map[string]string) ColumnMapping {
	out := make(ColumnMapping, len(m)+len(extra))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Normalize returns a copy of ds with every mapped column renamed. Unmapped
// columns keep their name and position. ds is not modified; the copy shares
// column buffers with it and must be released separately.
func Normalize(ds *Dataset, m ColumnMapping) *Dataset {
	if ds.Record == nil {
		return New(ds.Name, nil)
	}

	schema := ds.Record.Schema()
	fields := make([]arrow.Field, schema.NumFields())
	for i, f := range schema.Fields() {
		if renamed, ok := m[f.Name]; ok {
			f.Name = renamed
		}
		fields[i] = f
	}

	md := schema.Metadata()
	renamed := arrow.NewSchema(fields, &md)
	rec := array.NewRecord(renamed, ds.Record.Columns(), ds.Record.NumRows())
	return New(ds.Name, rec)
}
