// Package export writes dashboard report snapshots to R2-compatible
// object storage and hands back a time-limited download URL.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/tmajkow/coursepulse/internal/analytics"
)

// Validation errors
var (
	ErrInvalidCompanyID = errors.New("invalid company ID")
	ErrNilReport        = errors.New("report is nil")
)

// Result describes a completed export.
type Result struct {
	Key       string    `json:"key"`        // Object key in the bucket
	URL       string    `json:"url"`        // Pre-signed GET URL
	ExpiresAt time.Time `json:"expires_at"` // URL expiration time
	SizeBytes int64     `json:"size_bytes"` // Snapshot size
}

// Service uploads report snapshots to R2.
type Service struct {
	s3Client      *s3.Client
	presignClient *s3.PresignClient
	bucketName    string
	urlExpiry     time.Duration
	timeNow       func() time.Time // For testability
}

// ServiceConfig holds configuration for the export service.
type ServiceConfig struct {
	BucketName       string
	AccessKeyID      string
	SecretAccessKey  string
	Endpoint         string
	URLExpiryMinutes int // Default: 60 minutes
}

// NewService creates a new export service with the given configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	if cfg.URLExpiryMinutes <= 0 {
		cfg.URLExpiryMinutes = 60
	}

	// Create S3 client with R2-compatible configuration
	s3Client := s3.New(s3.Options{
		Region: "auto", // R2 uses auto region
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // No session token for R2
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true, // R2 requires path-style addressing
	})

	return &Service{
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
		bucketName:    cfg.BucketName,
		urlExpiry:     time.Duration(cfg.URLExpiryMinutes) * time.Minute,
		timeNow:       time.Now,
	}, nil
}

// GenerateObjectKey creates a unique object key for a snapshot.
// Pattern: exports/{companyID}/{timestamp}-{uuid}.json
func GenerateObjectKey(companyID string, at time.Time) (string, error) {
	sanitized := sanitizePathComponent(companyID)
	if sanitized == "" {
		return "", ErrInvalidCompanyID
	}
	stamp := at.UTC().Format("2006-01-02T15-04-05")
	return fmt.Sprintf("exports/%s/%s-%s.json", sanitized, stamp, uuid.New().String()), nil
}

// sanitizePathComponent removes potentially dangerous characters from path components.
func sanitizePathComponent(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Export uploads a JSON snapshot of the report and returns a pre-signed
// download URL for it.
func (s *Service) Export(ctx context.Context, companyID string, report *analytics.DashboardReport) (*Result, error) {
	if report == nil {
		return nil, ErrNilReport
	}

	key, err := GenerateObjectKey(companyID, s.timeNow())
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report snapshot: %w", err)
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload report snapshot: %w", err)
	}

	presigned, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.urlExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}

	return &Result{
		Key:       key,
		URL:       presigned.URL,
		ExpiresAt: s.timeNow().Add(s.urlExpiry),
		SizeBytes: int64(len(data)),
	}, nil
}
