// Package writer persists fetched tables as CSV artifacts, answers cache
// lookups against artifacts already on disk and optionally mirrors them as
// parquet and to S3.
package writer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"histflow/models"
)

const timestampColumn = "timestamp"

// Header returns the CSV header for dt.
func Header(dt models.DataType) []string {
	return append([]string{timestampColumn}, dt.Columns()...)
}

// WriteCSV writes t to path through a temporary file in the same directory
// so a reader never sees a half written artifact.
func WriteCSV(path string, t *models.Table) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(Header(t.DataType)); err != nil {
			return err
		}
		for _, row := range t.Rows {
			if err := cw.Write(formatRow(t.DataType, row)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func formatRow(dt models.DataType, row models.Row) []string {
	cols := dt.Columns()
	rec := make([]string, 0, len(cols)+1)
	rec = append(rec, row.Time.UTC().Format(models.TimestampLayout))
	for i, v := range row.Values {
		if i < len(cols) && cols[i] == "funding_time" {
			rec = append(rec, time.UnixMilli(int64(v)).UTC().Format(models.TimestampLayout))
			continue
		}
		rec = append(rec, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return rec
}

// ReadCSV loads an artifact written by WriteCSV.
func ReadCSV(path string, dt models.DataType) (*models.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", models.ErrFilesystem, path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	want := Header(dt)
	cr.FieldsPerRecord = len(want)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header of %s: %v", models.ErrFilesystem, path, err)
	}
	for i := range want {
		if header[i] != want[i] {
			return nil, fmt.Errorf("%w: %s has header %v, want %v", models.ErrFilesystem, path, header, want)
		}
	}

	table := models.NewTable(dt)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", models.ErrFilesystem, path, line, err)
		}
		row, err := parseRow(want, rec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", models.ErrFilesystem, path, line, err)
		}
		table.Append(row)
	}
	return table, nil
}

func parseRow(header, rec []string) (models.Row, error) {
	ts, err := time.ParseInLocation(models.TimestampLayout, rec[0], time.UTC)
	if err != nil {
		return models.Row{}, err
	}
	row := models.Row{Time: ts, Values: make([]float64, len(rec)-1)}
	for i, s := range rec[1:] {
		if header[i+1] == "funding_time" {
			ft, err := time.ParseInLocation(models.TimestampLayout, s, time.UTC)
			if err != nil {
				return models.Row{}, err
			}
			row.Values[i] = float64(ft.UnixMilli())
			continue
		}
		if row.Values[i], err = strconv.ParseFloat(s, 64); err != nil {
			return models.Row{}, err
		}
	}
	return row, nil
}

// writeAtomic streams fill into a temp file next to path and renames it
// into place.
func writeAtomic(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", models.ErrFilesystem, dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file in %s: %v", models.ErrFilesystem, dir, err)
	}
	name := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("%w: write %s: %v", models.ErrFilesystem, path, err)
	}

	if err := fill(tmp); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: close %s: %v", models.ErrFilesystem, name, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: chmod %s: %v", models.ErrFilesystem, name, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: rename to %s: %v", models.ErrFilesystem, path, err)
	}
	return nil
}
