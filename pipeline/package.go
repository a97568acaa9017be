package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

const (
	normalizedDir = "normalized"
	loadedDir     = "loaded"
)

// loadPackage is the on-disk staging area for one load
type loadPackage struct {
	root   string // <pipelines_dir>/<pipeline>/load
	loadID string
}

func (p loadPackage) dir() string {
	return filepath.Join(p.root, normalizedDir, p.loadID)
}

func (p loadPackage) file(table string) string {
	return filepath.Join(p.dir(), table+".parquet")
}

// checkTableName rejects names that would leave the package directory
func checkTableName(table string) error {
	if table == "" || table == "." || table == ".." || table != filepath.Base(table) || strings.ContainsAny(table, `/\`) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

// write stores rec as a Parquet file for table and returns its path
func (p loadPackage) write(table string, rec arrow.Record) (string, error) {
	if err := checkTableName(table); err != nil {
		return "", err
	}
	if err := os.MkdirAll(p.dir(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create load package directory: %w", err)
	}

	path := p.file(table)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create load package file: %w", err)
	}
	defer f.Close()

	props := parquet.NewWriterProperties(
		parquet.WithDictionaryDefault(true),
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithCreatedBy("duckdb-pipe"),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(rec.Schema(), f, props, arrowProps)
	if err != nil {
		return "", fmt.Errorf("failed to create Parquet writer: %w", err)
	}
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	return path, nil
}

// complete removes the package, or moves it under loaded/ when retain is set
func (p loadPackage) complete(retain bool) error {
	if !retain {
		return os.RemoveAll(p.dir())
	}
	dest := filepath.Join(p.root, loadedDir, p.loadID)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.Rename(p.dir(), dest)
}
