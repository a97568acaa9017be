// Package dataset holds the columnar Event Dataset produced by a source and
// consumed by the loader.
package dataset

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Dataset is one named batch of rows for a single event type. Name is also
// the destination table name.
type Dataset struct {
	Name   string
	Record arrow.Record
}

// New wraps an Arrow record. The dataset takes ownership of rec.
func New(name string, rec arrow.Record) *Dataset {
	return &Dataset{Name: name, Record: rec}
}

// NumRows returns the number of rows, zero for a nil record
func (d *Dataset) NumRows() int64 {
	if d == nil || d.Record == nil {
		return 0
	}
	return d.Record.NumRows()
}

// IsEmpty reports whether the dataset has no rows
func (d *Dataset) IsEmpty() bool {
	return d.NumRows() == 0
}

// ColumnNames returns the column names in schema order
func (d *Dataset) ColumnNames() []string {
	if d == nil || d.Record == nil {
		return nil
	}
	fields := d.Record.Schema().Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// Release frees the underlying Arrow memory
func (d *Dataset) Release() {
	if d != nil && d.Record != nil {
		d.Record.Release()
		d.Record = nil
	}
}
