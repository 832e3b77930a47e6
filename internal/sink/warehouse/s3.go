package warehouse

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// s3Client handles S3/MinIO operations. Grounded on
// internal/warehouse/s3.go's S3Client, trimmed to what the sink needs
// (upload + key generation; bucket lifecycle and listing are operator
// concerns outside the sender core's scope).
type s3Client struct {
	client *s3.Client
	config S3Config
	logger *slog.Logger
}

func newS3Client(ctx context.Context, cfg S3Config, logger *slog.Logger) (*s3Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &s3Client{
		client: client,
		config: cfg,
		logger: logger.With("component", "warehouse_s3"),
	}, nil
}

func (c *s3Client) upload(ctx context.Context, key string, data []byte) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-parquet"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	c.logger.Debug("uploaded to S3", "key", key, "size_bytes", len(data))
	return nil
}

// generateKey formats an S3 key for the given partition.
// Format: {prefix}/year={y}/month={m}/day={d}/hour={h}/events_{uuid}.parquet.
func (c *s3Client) generateKey(year, month, day, hour int) string {
	return fmt.Sprintf(
		"%s/year=%d/month=%02d/day=%02d/hour=%02d/events_%s.parquet",
		c.config.Prefix, year, month, day, hour, uuid.New().String(),
	)
}
