package conformance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Archive optionally persists a completed Report to S3, so a run's
// history survives the process that produced it; a Runner works fine
// without one.
type S3Archive struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3ArchiveConfig configures the archive's S3 location.
type S3ArchiveConfig struct {
	Bucket   string
	Prefix   string // object key prefix, e.g. "conformance/"
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
}

// NewS3Archive builds an S3-backed report archive.
func NewS3Archive(ctx context.Context, cfg S3ArchiveConfig) (*S3Archive, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("conformance: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Put uploads report under <prefix><suite-name>/<vectors-digest>.json, so
// every run of the same suite against the same fixture set lands on a
// stable, content-addressed key.
func (a *S3Archive) Put(ctx context.Context, report *Report) error {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("conformance: marshal report: %w", err)
	}

	key := fmt.Sprintf("%s%s/%s.json", a.prefix, report.Suite.Name, report.Suite.VectorsDigest)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("conformance: put report: %w", err)
	}
	return nil
}
