package dataset

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Builder accumulates rows for a fixed schema
type Builder struct {
	name string
	rb   *array.RecordBuilder
	rows int
}

// NewBuilder creates a row builder for the named dataset
func NewBuilder(name string, schema *arrow.Schema, mem memory.Allocator) *Builder {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Builder{
		name: name,
		rb:   array.NewRecordBuilder(mem, schema),
	}
}

// AppendRow appends one row. values must follow the schema's field order;
// nil appends a null. Every value is checked before any column is touched,
// so a rejected row leaves the builder unchanged.
func (b *Builder) AppendRow(values ...any) error {
	fields := b.rb.Schema().Fields()
	if len(values) != len(fields) {
		return fmt.Errorf("row has %d values, schema has %d fields", len(values), len(fields))
	}
	appends := make([]func(), len(values))
	for i, v := range values {
		fn, err := appender(b.rb.Field(i), v)
		if err != nil {
			return fmt.Errorf("column %s: %w", fields[i].Name, err)
		}
		appends[i] = fn
	}
	for _, fn := range appends {
		fn()
	}
	b.rows++
	return nil
}

// Len returns the number of rows appended since the last Build
func (b *Builder) Len() int {
	return b.rows
}

// Build returns the accumulated rows as a Dataset and resets the builder
func (b *Builder) Build() *Dataset {
	rec := b.rb.NewRecord()
	b.rows = 0
	return New(b.name, rec)
}

// Release frees the builder's buffers
func (b *Builder) Release() {
	b.rb.Release()
}

// appender converts v for b, widening compatible integer types, and returns
// the deferred append.
func appender(b array.Builder, v any) (func(), error) {
	if v == nil {
		return b.AppendNull, nil
	}

	switch bldr := b.(type) {
	case *array.BooleanBuilder:
		val, ok := v.(bool)
		if !ok {
			return nil, typeError(v, "bool")
		}
		return func() { bldr.Append(val) }, nil
	case *array.Int64Builder:
		val, ok := toInt64(v)
		if !ok {
			return nil, typeError(v, "int64")
		}
		return func() { bldr.Append(val) }, nil
	case *array.Int32Builder:
		val, ok := toInt64(v)
		if !ok || val != int64(int32(val)) {
			return nil, typeError(v, "int32")
		}
		return func() { bldr.Append(int32(val)) }, nil
	case *array.Uint64Builder:
		val, ok := toUint64(v)
		if !ok {
			return nil, typeError(v, "uint64")
		}
		return func() { bldr.Append(val) }, nil
	case *array.Float64Builder:
		var val float64
		switch f := v.(type) {
		case float64:
			val = f
		case float32:
			val = float64(f)
		default:
			return nil, typeError(v, "float64")
		}
		return func() { bldr.Append(val) }, nil
	case *array.StringBuilder:
		var val string
		switch s := v.(type) {
		case string:
			val = s
		case fmt.Stringer:
			val = s.String()
		default:
			return nil, typeError(v, "string")
		}
		return func() { bldr.Append(val) }, nil
	case *array.BinaryBuilder:
		val, ok := v.([]byte)
		if !ok {
			return nil, typeError(v, "[]byte")
		}
		return func() { bldr.Append(val) }, nil
	case *array.TimestampBuilder:
		t, ok := v.(time.Time)
		if !ok {
			return nil, typeError(v, "time.Time")
		}
		unit := bldr.Type().(*arrow.TimestampType).Unit
		ts, err := arrow.TimestampFromTime(t, unit)
		if err != nil {
			return nil, err
		}
		return func() { bldr.Append(ts) }, nil
	}
	return nil, fmt.Errorf("unsupported column type %s", b.Type())
}

func typeError(v any, want string) error {
	return fmt.Errorf("cannot append %T as %s", v, want)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case int:
		if n >= 0 {
			return uint64(n), true
		}
	case int64:
		if n >= 0 {
			return uint64(n), true
		}
	}
	return 0, false
}
