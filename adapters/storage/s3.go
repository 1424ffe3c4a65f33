// Package storage holds the durable object-store bridge. Persistence is
// best-effort for the pipeline: callers absorb failures here and deliver the
// image inline instead.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/tufuturo/totem/domain/repositories"
)

const keyPrefix = "totem-fotos/"

// S3Config holds configuration for the S3 bridge.
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Storage implements ObjectStorage on an S3 bucket.
type S3Storage struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	region  string
	logger  *zap.Logger
}

var _ repositories.ObjectStorage = (*S3Storage)(nil)

// NewS3Storage creates the bridge. Static credentials are used when provided;
// otherwise the default AWS credential chain applies.
func NewS3Storage(ctx context.Context, config S3Config, logger *zap.Logger) (*S3Storage, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Storage{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  config.Bucket,
		region:  config.Region,
		logger:  logger,
	}, nil
}

// Upload stores the image under the totem prefix and returns its public URL
// and key.
func (s *S3Storage) Upload(ctx context.Context, data []byte, fileName, contentType string) (*repositories.StoredObject, error) {
	key := keyPrefix + fileName

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("max-age=31536000"),
		Metadata: map[string]string{
			"uploaded-at": time.Now().UTC().Format(time.RFC3339),
			"source":      "totem",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	s.logger.Info("Image uploaded to object storage",
		zap.String("key", key),
		zap.Int("bytes", len(data)))

	return &repositories.StoredObject{URL: url, Key: key}, nil
}

// SignDownload produces a time-limited retrieval link that downloads as an
// attachment with the given file name.
func (s *S3Storage) SignDownload(ctx context.Context, key, fileName string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", fileName)),
		ResponseContentType:        aws.String("image/jpeg"),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to sign download URL: %w", err)
	}

	s.logger.Info("Signed download URL generated", zap.String("key", key))
	return req.URL, nil
}

// Delete removes a stored image. Unused by the main flow but part of the
// bridge contract.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}

	s.logger.Info("Image deleted from object storage", zap.String("key", key))
	return nil
}
