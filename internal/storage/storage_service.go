// Package storage wraps S3-compatible object storage for punch photos.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lengolf/timeclock/backend/internal/config"
)

// StorageService handles S3/MinIO operations for photo storage
type StorageService struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	presignExpiry time.Duration
}

// NewStorageService creates a new storage service with an S3/MinIO client
func NewStorageService(cfg *config.StorageConfig) (*StorageService, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint not configured")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket not configured")
	}

	// Endpoint may or may not carry a protocol already
	endpointURL := cfg.Endpoint
	if !strings.HasPrefix(endpointURL, "http://") && !strings.HasPrefix(endpointURL, "https://") {
		endpointURL = "https://" + endpointURL
	}

	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		BaseEndpoint: aws.String(endpointURL),
		UsePathStyle: cfg.UsePathStyle, // required for MinIO
	})

	presignExpiry := cfg.PresignExpiry
	if presignExpiry == 0 {
		presignExpiry = 15 * time.Minute
	}

	return &StorageService{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		presignExpiry: presignExpiry,
	}, nil
}

// Upload stores an object and returns its storage reference
func (s *StorageService) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// PresignGet generates a pre-signed download URL for an object.
// The URL expires after the configured duration (default: 15 minutes).
func (s *StorageService) PresignGet(ctx context.Context, key string) (string, time.Duration, error) {
	return s.PresignGetWithExpiry(ctx, key, s.presignExpiry)
}

// PresignGetWithExpiry generates a pre-signed download URL with a custom expiration
func (s *StorageService) PresignGetWithExpiry(ctx context.Context, key string, expiry time.Duration) (string, time.Duration, error) {
	presignedReq, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	return presignedReq.URL, expiry, nil
}

// Delete removes a single object
func (s *StorageService) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// HealthCheck verifies the bucket is reachable
func (s *StorageService) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}

// GetBucket returns the configured bucket name
func (s *StorageService) GetBucket() string {
	return s.bucket
}

// GetPresignExpiry returns the configured pre-signed URL expiration
func (s *StorageService) GetPresignExpiry() time.Duration {
	return s.presignExpiry
}
