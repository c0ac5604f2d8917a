// Package dataset streams rows out of the compressed columnar source
// datasets. A Reader wraps one parquet file and yields Arrow record batches
// of at most the configured chunk size, so the loader never materializes
// the full dataset.
package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/klauspost/compress/gzip"

	"github.com/geolinks/geolinks/pkg/errors"
)

// Reader streams one parquet dataset as chunk-sized Arrow record batches.
type Reader struct {
	location   string
	fileReader *file.Reader
	records    pqarrow.RecordReader
	schema     *arrow.Schema
	totalRows  int64
}

// Open fetches and opens a parquet dataset, transparently decompressing
// gzip. The required column names are checked against the parquet schema
// before any row is read: a missing column is a schema mismatch, a
// missing or unreadable file is a dataset-unavailable error.
func Open(ctx context.Context, location string, chunkSize int, required []string, opts FetchOptions) (*Reader, error) {
	data, err := fetch(ctx, location, opts)
	if err != nil {
		return nil, err
	}

	data, err = maybeGunzip(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatasetUnavailable,
			fmt.Sprintf("failed to decompress dataset %s", location))
	}

	fr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatasetUnavailable,
			fmt.Sprintf("corrupt parquet dataset %s", location))
	}

	arrowReader, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{
		BatchSize: int64(chunkSize),
	}, memory.NewGoAllocator())
	if err != nil {
		fr.Close() //nolint:errcheck
		return nil, errors.Wrap(err, errors.ErrorTypeDatasetUnavailable,
			fmt.Sprintf("failed to open arrow reader for %s", location))
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		fr.Close() //nolint:errcheck
		return nil, errors.Wrap(err, errors.ErrorTypeDatasetUnavailable,
			fmt.Sprintf("failed to read schema of %s", location))
	}

	if err := checkColumns(schema, required); err != nil {
		fr.Close() //nolint:errcheck
		return nil, errors.Wrap(err, errors.ErrorTypeSchemaMismatch,
			fmt.Sprintf("dataset %s", location))
	}

	rr, err := arrowReader.GetRecordReader(ctx, nil, nil)
	if err != nil {
		fr.Close() //nolint:errcheck
		return nil, errors.Wrap(err, errors.ErrorTypeDatasetUnavailable,
			fmt.Sprintf("failed to start record reader for %s", location))
	}

	return &Reader{
		location:   location,
		fileReader: fr,
		records:    rr,
		schema:     schema,
		totalRows:  fr.NumRows(),
	}, nil
}

// TotalRows returns the row count from the parquet footer. It is known up
// front and costs nothing, which is what makes progress percentages cheap.
func (r *Reader) TotalRows() int64 {
	return r.totalRows
}

// Schema returns the Arrow schema of the dataset.
func (r *Reader) Schema() *arrow.Schema {
	return r.schema
}

// Location returns the source location the reader was opened from.
func (r *Reader) Location() string {
	return r.location
}

// Next returns the next record batch, or nil at end of data. The returned
// record is retained for the caller, which must Release it once the chunk
// has been written.
func (r *Reader) Next(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !r.records.Next() {
		if err := r.records.Err(); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, errors.ErrorTypeDatasetUnavailable,
				fmt.Sprintf("read failure in %s", r.location))
		}
		return nil, nil
	}

	rec := r.records.Record()
	rec.Retain()
	return rec, nil
}

// Close releases the underlying parquet reader.
func (r *Reader) Close() error {
	if r.records != nil {
		r.records.Release()
		r.records = nil
	}
	if r.fileReader != nil {
		err := r.fileReader.Close()
		r.fileReader = nil
		return err
	}
	return nil
}

// checkColumns verifies every required column exists in the schema.
func checkColumns(schema *arrow.Schema, required []string) error {
	for _, name := range required {
		if !schema.HasField(name) {
			return fmt.Errorf("required column %q absent", name)
		}
	}
	return nil
}

// maybeGunzip decompresses data when it carries the gzip magic bytes.
func maybeGunzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close() //nolint:errcheck

	return io.ReadAll(zr)
}
