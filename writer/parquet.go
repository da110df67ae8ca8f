package writer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"histflow/models"
)

type priceRecord struct {
	Timestamp int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Open      float64 `parquet:"name=open, type=DOUBLE"`
	High      float64 `parquet:"name=high, type=DOUBLE"`
	Low       float64 `parquet:"name=low, type=DOUBLE"`
	Close     float64 `parquet:"name=close, type=DOUBLE"`
	Volume    float64 `parquet:"name=volume, type=DOUBLE"`
}

type valueRecord struct {
	Timestamp int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Value     float64 `parquet:"name=value, type=DOUBLE"`
}

type fundingRecord struct {
	Timestamp   int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	FundingRate float64 `parquet:"name=funding_rate, type=DOUBLE"`
	FundingTime int64   `parquet:"name=funding_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// memFile is an in-memory source.ParquetFile; the encoded bytes are written
// to disk in one atomic step.
type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
func (m *memFile) Bytes() []byte                             { return m.buffer.Bytes() }

func compressionCodec(name string) parquet.CompressionCodec {
	switch strings.ToLower(name) {
	case "snappy", "":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

// EncodeParquet renders t as a parquet file.
func EncodeParquet(t *models.Table, compression string) ([]byte, error) {
	var schema interface{}
	var record func(models.Row) interface{}
	switch t.DataType {
	case models.Price:
		schema = new(priceRecord)
		record = func(r models.Row) interface{} {
			return priceRecord{
				Timestamp: r.Time.UnixMilli(),
				Open:      value(r, 0), High: value(r, 1), Low: value(r, 2), Close: value(r, 3), Volume: value(r, 4),
			}
		}
	case models.FundingRate:
		schema = new(fundingRecord)
		record = func(r models.Row) interface{} {
			return fundingRecord{Timestamp: r.Time.UnixMilli(), FundingRate: value(r, 0), FundingTime: int64(value(r, 1))}
		}
	default:
		schema = new(valueRecord)
		record = func(r models.Row) interface{} {
			return valueRecord{Timestamp: r.Time.UnixMilli(), Value: value(r, 0)}
		}
	}

	mem := newMemFile()
	pw, err := pqwriter.NewParquetWriter(mem, schema, 1)
	if err != nil {
		return nil, fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(compression)

	for _, row := range t.Rows {
		if err := pw.Write(record(row)); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("write %s record: %w", t.DataType, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize %s parquet: %w", t.DataType, err)
	}
	return mem.Bytes(), nil
}

func value(r models.Row, i int) float64 {
	if i < len(r.Values) {
		return r.Values[i]
	}
	return 0
}

// WriteParquet writes the parquet rendition of t to path atomically.
func WriteParquet(path string, t *models.Table, compression string) error {
	data, err := EncodeParquet(t, compression)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrFilesystem, err)
	}
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
