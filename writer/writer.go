package writer

import (
	"context"
	"strings"
	"time"

	"histflow/config"
	"histflow/internal/metrics"
	"histflow/logger"
	"histflow/models"
)

// Writer stores finished tables. The CSV artifact is the result of a
// request; parquet sidecars and S3 copies are best effort.
type Writer struct {
	cfg      config.WriterConfig
	uploader *Uploader
	log      *logger.Log
}

// New returns a Writer. uploader may be nil when S3 is disabled.
func New(cfg config.WriterConfig, uploader *Uploader) *Writer {
	return &Writer{cfg: cfg, uploader: uploader, log: logger.GetLogger()}
}

// Write stores t at ArtifactPath(dir, req). It returns the artifact path, or ""
// when t is empty and empty artifacts are disabled.
func (w *Writer) Write(ctx context.Context, dir string, req models.FetchRequest, t *models.Table) (string, error) {
	log := w.log.WithComponent("writer").WithFields(logger.Fields{
		"exchange":  req.Exchange,
		"symbol":    req.Symbol,
		"data_type": string(req.DataType),
	})

	if t.Len() == 0 && !w.cfg.WriteEmpty {
		log.Debug("empty result, no artifact written")
		return "", nil
	}

	start := time.Now()
	path := ArtifactPath(dir, req)
	if err := WriteCSV(path, t); err != nil {
		return "", err
	}
	metrics.AddRows(req.Exchange, string(req.DataType), t.Len())
	logger.LogDataFlowEntry(log, "table", "csv", t.Len(), string(req.DataType))

	files := []string{path}
	if w.cfg.Parquet.Enabled {
		pq := strings.TrimSuffix(path, ".csv") + ".parquet"
		if err := WriteParquet(pq, t, w.cfg.Parquet.Compression); err != nil {
			log.WithError(err).WithField("path", pq).Warn("failed to write parquet sidecar")
		} else {
			files = append(files, pq)
		}
	}

	if w.uploader != nil {
		for _, f := range files {
			if err := w.uploader.Upload(ctx, req, f); err != nil {
				logger.RecordUpload(false)
				log.WithError(err).WithField("path", f).Warn("s3 upload failed")
				continue
			}
			logger.RecordUpload(true)
		}
	}

	logger.LogPerformanceEntry(log, "writer", "write_artifact", time.Since(start), logger.Fields{
		"path": path,
		"rows": t.Len(),
	})
	return path, nil
}
