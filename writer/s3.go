package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"histflow/config"
	"histflow/logger"
	"histflow/models"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader mirrors artifacts to an S3 bucket under a Hive style layout.
type Uploader struct {
	client  objectPutter
	bucket  string
	prefix  string
	version string
	runID   string
	log     *logger.Log
}

// NewUploader builds an S3 client from cfg. Static credentials are used when
// both keys are set, otherwise the default AWS chain applies.
func NewUploader(ctx context.Context, cfg config.S3Config, version string) (*Uploader, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	u := newUploader(client, cfg.Bucket, cfg.Prefix, version)
	u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"bucket":   cfg.Bucket,
		"region":   cfg.Region,
		"prefix":   cfg.Prefix,
		"endpoint": cfg.Endpoint,
		"run_id":   u.runID,
	}).Info("s3 uploader initialized")
	return u, nil
}

func newUploader(client objectPutter, bucket, prefix, version string) *Uploader {
	return &Uploader{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		version: version,
		runID:   uuid.NewString(),
		log:     logger.GetLogger(),
	}
}

// Key is the object key for an artifact of req.
func (u *Uploader) Key(req models.FetchRequest, filename string) string {
	return path.Join(
		u.prefix,
		"exchange="+req.Exchange,
		"data_type="+string(req.DataType),
		"symbol="+req.Symbol,
		filename,
	)
}

// Upload puts the file at local under Key(req, base name of local).
func (u *Uploader) Upload(ctx context.Context, req models.FetchRequest, local string) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", models.ErrFilesystem, local, err)
	}

	name := filepath.Base(local)
	key := u.Key(req, name)
	contentType := "text/csv"
	if strings.HasSuffix(name, ".parquet") {
		contentType = "application/octet-stream"
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"exchange":         req.Exchange,
			"symbol":           req.Symbol,
			"data-type":        string(req.DataType),
			"histflow-version": u.version,
			"histflow-run-id":  u.runID,
		},
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", u.bucket, key, err)
	}

	logger.LogPerformanceEntry(u.log.WithComponent("s3_uploader"), "s3_uploader", "put_object", time.Since(start), logger.Fields{
		"key":   key,
		"bytes": len(data),
	})
	return nil
}
