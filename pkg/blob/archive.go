// Package blob stores raw uploaded import files in an S3-compatible bucket.
// Archiving is best effort: a failed upload is logged and counted, never
// surfaced to the import caller.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/config"
)

// ArchiveStore writes import uploads to a single bucket. Keys are
// "imports/<import-log-id>/<file-name>".
type ArchiveStore struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// New creates an ArchiveStore from config. Returns nil (disabled) when no
// bucket is configured; callers must handle the nil store.
func New(ctx context.Context, cfg *config.ArchiveConfig, logger *zap.Logger) (*ArchiveStore, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &ArchiveStore{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.Named("archive"),
	}, nil
}

// Put uploads one import file under the given import-log ID.
func (s *ArchiveStore) Put(ctx context.Context, importLogID, fileName string, data []byte) error {
	if s == nil {
		return nil
	}

	key := fmt.Sprintf("imports/%s/%s", importLogID, fileName)

	putCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.client.PutObject(putCtx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to archive import file %s: %w", key, err)
	}

	s.logger.Debug("Archived import file",
		zap.String("key", key),
		zap.Int("bytes", len(data)))
	return nil
}
