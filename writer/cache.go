package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"histflow/config"
	"histflow/logger"
	"histflow/models"
	"histflow/processor"
)

// Hit is a cache answer for one request.
type Hit struct {
	// Path is the artifact the rows came from.
	Path string
	// Exact is set when Path is the request's own artifact.
	Exact bool
	// Table holds the cached rows clipped to the request range.
	Table *models.Table
	// Covered is the part of the request the artifact spans.
	Covered models.TimeRange
	// Missing lists the sub-ranges still to be fetched. It is only non-empty
	// in extend mode.
	Missing []models.TimeRange
}

// Complete reports whether the hit answers the whole request.
func (h *Hit) Complete() bool { return h != nil && len(h.Missing) == 0 }

// Cache answers lookups from the artifacts already in one output directory.
type Cache struct {
	dir     string
	partial string
	log     *logger.Log
}

func NewCache(dir, partial string) *Cache {
	if partial == "" {
		partial = config.PartialRefetch
	}
	return &Cache{dir: dir, partial: partial, log: logger.GetLogger()}
}

func (c *Cache) Dir() string { return c.dir }

// Path is where the artifact for req lives.
func (c *Cache) Path(req models.FetchRequest) string {
	return ArtifactPath(c.dir, req)
}

// ArtifactDir is the directory holding every artifact of req's exchange and
// data type.
func ArtifactDir(root string, req models.FetchRequest) string {
	return filepath.Join(root, req.Exchange, string(req.DataType))
}

// ArtifactPath is root/{exchange}/{data_type}/{filename}.
func ArtifactPath(root string, req models.FetchRequest) string {
	return filepath.Join(ArtifactDir(root, req), req.Filename())
}

// Lookup returns nil when nothing on disk can answer req. An exact artifact
// wins, then a sibling whose range covers req. In extend mode the sibling
// with the largest overlap answers with the missing ranges attached.
func (c *Cache) Lookup(req models.FetchRequest) (*Hit, error) {
	log := c.log.WithComponent("cache").WithFields(logger.Fields{
		"exchange":  req.Exchange,
		"symbol":    req.Symbol,
		"data_type": string(req.DataType),
		"range":     req.Range.String(),
	})

	exact := c.Path(req)
	if _, err := os.Stat(exact); err == nil {
		t, err := ReadCSV(exact, req.DataType)
		if err != nil {
			return nil, err
		}
		log.WithField("path", exact).Debug("exact cache hit")
		return &Hit{Path: exact, Exact: true, Table: t, Covered: req.Range}, nil
	}

	siblings, err := c.siblings(req)
	if err != nil {
		return nil, err
	}

	var best *sibling
	for i := range siblings {
		s := &siblings[i]
		if s.tr.Covers(req.Range) {
			return c.load(log, req, s, nil)
		}
		if c.partial == config.PartialExtend && s.tr.Overlaps(req.Range) {
			if best == nil || overlap(s.tr, req.Range) > overlap(best.tr, req.Range) {
				best = s
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	return c.load(log, req, best, missing(req.Range, best.tr))
}

type sibling struct {
	path string
	tr   models.TimeRange
}

// siblings lists artifacts for the same exchange, symbol, data type and
// interval under any date range.
func (c *Cache) siblings(req models.FetchRequest) ([]sibling, error) {
	dir := ArtifactDir(c.dir, req)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", models.ErrFilesystem, dir, err)
	}

	prefix := req.FilePrefix()
	var out []sibling
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".csv") {
			continue
		}
		dates := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".csv")
		start, end, ok := strings.Cut(dates, "_to_")
		if !ok {
			continue
		}
		tr, err := models.ParseTimeRange(start, end)
		if err != nil || tr.Empty() {
			continue
		}
		out = append(out, sibling{path: filepath.Join(dir, name), tr: tr})
	}
	return out, nil
}

func (c *Cache) load(log *logger.Entry, req models.FetchRequest, s *sibling, gaps []models.TimeRange) (*Hit, error) {
	t, err := ReadCSV(s.path, req.DataType)
	if err != nil {
		return nil, err
	}
	covered := intersect(req.Range, s.tr)
	hit := &Hit{Path: s.path, Table: processor.Normalize(t, covered), Covered: covered, Missing: gaps}
	log.WithFields(logger.Fields{
		"path":    s.path,
		"rows":    hit.Table.Len(),
		"missing": len(gaps),
	}).Debug("cache hit from sibling artifact")
	return hit, nil
}

func intersect(a, b models.TimeRange) models.TimeRange {
	out := a
	if b.Start.After(out.Start) {
		out.Start = b.Start
	}
	if b.End.Before(out.End) {
		out.End = b.End
	}
	return out
}

func overlap(a, b models.TimeRange) int64 {
	i := intersect(a, b)
	if i.Empty() {
		return 0
	}
	return int64(i.End.Sub(i.Start))
}

// missing returns the parts of want outside have, in order.
func missing(want, have models.TimeRange) []models.TimeRange {
	var out []models.TimeRange
	if have.Start.After(want.Start) {
		out = append(out, models.TimeRange{Start: want.Start, End: have.Start})
	}
	if have.End.Before(want.End) {
		out = append(out, models.TimeRange{Start: have.End, End: want.End})
	}
	return out
}
