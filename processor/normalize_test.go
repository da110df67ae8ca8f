package processor

import (
	"testing"
	"time"

	"histflow/models"
)

func at(h int) time.Time {
	return time.Date(2025, 1, 1, h, 0, 0, 0, time.UTC)
}

func row(h int, v float64) models.Row {
	return models.Row{Time: at(h), Values: []float64{v}}
}

func TestNormalize(t *testing.T) {
	tr, _ := models.ParseTimeRange("2025-01-01", "2025-01-02")
	in := &models.Table{DataType: models.PriceIndex, Rows: []models.Row{
		row(5, 5), row(1, 1), row(3, 3), row(1, 10), row(24, 24),
		{Time: at(0).Add(-time.Hour), Values: []float64{-1}},
	}}

	out := Normalize(in, tr)
	if out.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d: %+v", out.Len(), out.Rows)
	}
	if Validate(out) != -1 {
		t.Fatalf("rows not strictly increasing")
	}
	if out.Rows[0].Values[0] != 10 {
		t.Fatalf("last duplicate should win, got %v", out.Rows[0].Values)
	}
	if in.Len() != 6 {
		t.Fatalf("input must not be modified")
	}
}

func TestNormalizeEmpty(t *testing.T) {
	tr, _ := models.ParseTimeRange("2025-01-01", "2025-01-02")
	out := Normalize(models.NewTable(models.Price), tr)
	if out.Len() != 0 || out.DataType != models.Price {
		t.Fatalf("unexpected %+v", out)
	}
}

func TestMerge(t *testing.T) {
	tr, _ := models.ParseTimeRange("2025-01-01", "2025-01-02")
	a := &models.Table{DataType: models.PremiumIndex, Rows: []models.Row{row(0, 0), row(1, 1), row(2, 2)}}
	b := &models.Table{DataType: models.PremiumIndex, Rows: []models.Row{row(2, 20), row(3, 3)}}

	out := Merge(a, b, tr)
	if out.Len() != 4 {
		t.Fatalf("expected 4 rows, got %d", out.Len())
	}
	if out.Rows[2].Values[0] != 20 {
		t.Fatalf("b should win on overlap, got %v", out.Rows[2].Values)
	}
}

func TestValidate(t *testing.T) {
	tbl := &models.Table{Rows: []models.Row{row(0, 0), row(2, 0), row(2, 0)}}
	if got := Validate(tbl); got != 2 {
		t.Fatalf("Validate = %d, want 2", got)
	}
}
