package writer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"histflow/config"
	"histflow/models"
)

func mustRange(t *testing.T, start, end string) models.TimeRange {
	t.Helper()
	tr, err := models.ParseTimeRange(start, end)
	if err != nil {
		t.Fatalf("parse range: %v", err)
	}
	return tr
}

func minuteTable(dt models.DataType, tr models.TimeRange) *models.Table {
	t := models.NewTable(dt)
	for ts := tr.Start; ts.Before(tr.End); ts = ts.Add(time.Minute) {
		vals := []float64{float64(ts.Unix()%1000) + 0.25}
		if dt == models.Price {
			vals = []float64{1, 2, 0.5, 1.5, 100}
		}
		t.Append(models.Row{Time: ts, Values: vals})
	}
	return t
}

func request(tr models.TimeRange) models.FetchRequest {
	return models.FetchRequest{Exchange: "binance", Symbol: "BTCUSDT", DataType: models.PriceIndex, Interval: "1m", Range: tr}
}

func TestWriteCSVFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.csv")

	table := models.NewTable(models.FundingRate)
	at := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	table.Append(models.Row{Time: at, Values: []float64{0.0001, float64(at.UnixMilli())}})

	if err := WriteCSV(path, table); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "timestamp,funding_rate,funding_time\n2025-01-01 08:00:00,0.0001,2025-01-01 08:00:00\n"
	if string(data) != want {
		t.Fatalf("unexpected content:\n%s", data)
	}

	back, err := ReadCSV(path, models.FundingRate)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if back.Len() != 1 || !back.Rows[0].Time.Equal(at) || int64(back.Rows[0].Values[1]) != at.UnixMilli() {
		t.Fatalf("unexpected table %+v", back.Rows)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestWriteCSVEmptyTableHasHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := WriteCSV(path, models.NewTable(models.Price)); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "timestamp,open,high,low,close,volume\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestReadCSVRejectsWrongHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("timestamp,close\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadCSV(path, models.PriceIndex); !errors.Is(err, models.ErrFilesystem) {
		t.Fatalf("expected filesystem error, got %v", err)
	}
}

func TestCacheExactHit(t *testing.T) {
	dir := t.TempDir()
	tr := mustRange(t, "2025-01-01", "2025-01-02")
	req := request(tr)
	c := NewCache(dir, config.PartialRefetch)

	if hit, err := c.Lookup(req); err != nil || hit != nil {
		t.Fatalf("expected miss, got %v %v", hit, err)
	}
	if err := WriteCSV(c.Path(req), minuteTable(req.DataType, tr)); err != nil {
		t.Fatal(err)
	}
	hit, err := c.Lookup(req)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !hit.Exact || !hit.Complete() || hit.Table.Len() != 1440 {
		t.Fatalf("unexpected hit %+v", hit)
	}
}

func TestCacheCoveringSibling(t *testing.T) {
	dir := t.TempDir()
	wide := mustRange(t, "2025-01-01", "2025-01-04")
	c := NewCache(dir, config.PartialRefetch)
	if err := WriteCSV(c.Path(request(wide)), minuteTable(models.PriceIndex, wide)); err != nil {
		t.Fatal(err)
	}

	req := request(mustRange(t, "2025-01-02", "2025-01-03"))
	hit, err := c.Lookup(req)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if hit == nil || hit.Exact || !hit.Complete() {
		t.Fatalf("expected covering hit, got %+v", hit)
	}
	if hit.Table.Len() != 1440 || !hit.Table.First().Equal(req.Range.Start) {
		t.Fatalf("sibling rows not clipped: %d rows from %s", hit.Table.Len(), hit.Table.First())
	}
}

func TestCachePartialOverlap(t *testing.T) {
	have := mustRange(t, "2025-01-01", "2025-01-03")
	req := request(mustRange(t, "2025-01-02", "2025-01-05"))

	tests := []struct {
		name    string
		partial string
		hit     bool
	}{
		{"refetch ignores overlap", config.PartialRefetch, false},
		{"extend reports gaps", config.PartialExtend, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			c := NewCache(dir, tt.partial)
			if err := WriteCSV(c.Path(request(have)), minuteTable(models.PriceIndex, have)); err != nil {
				t.Fatal(err)
			}
			hit, err := c.Lookup(req)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if (hit != nil) != tt.hit {
				t.Fatalf("hit = %+v, want hit %v", hit, tt.hit)
			}
			if hit == nil {
				return
			}
			if len(hit.Missing) != 1 {
				t.Fatalf("expected one gap, got %v", hit.Missing)
			}
			gap := hit.Missing[0]
			if gap.StartDate() != "2025-01-03" || gap.EndDate() != "2025-01-05" {
				t.Fatalf("unexpected gap %s", gap)
			}
			if hit.Table.Len() != 1440 {
				t.Fatalf("expected one cached day, got %d rows", hit.Table.Len())
			}
		})
	}
}

func TestCacheIgnoresOtherInterval(t *testing.T) {
	dir := t.TempDir()
	tr := mustRange(t, "2025-01-01", "2025-01-02")
	c := NewCache(dir, config.PartialRefetch)
	other := request(tr)
	other.Interval = "5m"
	if err := WriteCSV(c.Path(other), minuteTable(models.PriceIndex, tr)); err != nil {
		t.Fatal(err)
	}
	if hit, err := c.Lookup(request(tr)); err != nil || hit != nil {
		t.Fatalf("expected miss, got %v %v", hit, err)
	}
}

func TestEncodeParquet(t *testing.T) {
	tr := mustRange(t, "2025-01-01", "2025-01-02")
	for _, dt := range models.AllDataTypes() {
		table := minuteTable(dt, tr)
		if dt == models.FundingRate {
			table = models.NewTable(dt)
			table.Append(models.Row{Time: tr.Start, Values: []float64{0.0001, float64(tr.Start.UnixMilli())}})
		}
		data, err := EncodeParquet(table, "snappy")
		if err != nil {
			t.Fatalf("%s: encode: %v", dt, err)
		}
		if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
			t.Fatalf("%s: missing parquet magic", dt)
		}
	}
}

type fakePutter struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.keys = append(f.keys, *in.Key)
	return &s3.PutObjectOutput{}, nil
}

func TestUploaderKey(t *testing.T) {
	u := newUploader(&fakePutter{}, "bucket", "/histflow/", "1.0.0")
	req := request(mustRange(t, "2025-01-01", "2025-01-02"))
	got := u.Key(req, req.Filename())
	want := "histflow/exchange=binance/data_type=price_index/symbol=BTCUSDT/binance_BTCUSDT_price_index_1m_2025-01-01_to_2025-01-02.csv"
	if got != want {
		t.Fatalf("key = %s, want %s", got, want)
	}
}

func TestWriterSidecarAndUpload(t *testing.T) {
	dir := t.TempDir()
	put := &fakePutter{}
	cfg := config.WriterConfig{WriteEmpty: true, Parquet: config.ParquetConfig{Enabled: true, Compression: "gzip"}}
	w := New(cfg, newUploader(put, "bucket", "p", "1.0.0"))

	tr := mustRange(t, "2025-01-01", "2025-01-02")
	req := request(tr)
	path, err := w.Write(context.Background(), dir, req, minuteTable(req.DataType, tr))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if path != filepath.Join(dir, "binance", "price_index", req.Filename()) {
		t.Fatalf("unexpected path %s", path)
	}
	if _, err := os.Stat(strings.TrimSuffix(path, ".csv") + ".parquet"); err != nil {
		t.Fatalf("parquet sidecar missing: %v", err)
	}
	if len(put.keys) != 2 {
		t.Fatalf("expected csv and parquet uploads, got %v", put.keys)
	}
}

func TestWriterUploadFailureNotFatal(t *testing.T) {
	dir := t.TempDir()
	w := New(config.WriterConfig{WriteEmpty: true}, newUploader(&fakePutter{err: errors.New("denied")}, "bucket", "", "1.0.0"))

	tr := mustRange(t, "2025-01-01", "2025-01-02")
	path, err := w.Write(context.Background(), dir, request(tr), minuteTable(models.PriceIndex, tr))
	if err != nil {
		t.Fatalf("upload failure must not fail the write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
}

func TestWriterEmptyResult(t *testing.T) {
	tr := mustRange(t, "2025-01-01", "2025-01-02")
	req := request(tr)

	dir := t.TempDir()
	path, err := New(config.WriterConfig{WriteEmpty: true}, nil).Write(context.Background(), dir, req, models.NewTable(req.DataType))
	if err != nil || path == "" {
		t.Fatalf("expected header only artifact, got %q %v", path, err)
	}

	dir = t.TempDir()
	path, err = New(config.WriterConfig{WriteEmpty: false}, nil).Write(context.Background(), dir, req, models.NewTable(req.DataType))
	if err != nil || path != "" {
		t.Fatalf("expected no artifact, got %q %v", path, err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("unexpected files %v", entries)
	}
}
