package jwks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Snapshot persists and restores a Resolver's whole cache as a single
// object, so a freshly started instance doesn't have to re-discover
// every issuer's keys cold. It is optional: a Resolver works without it.
type S3Snapshot struct {
	client *s3.Client
	bucket string
	key    string
}

// S3SnapshotConfig configures the snapshot's S3 location.
type S3SnapshotConfig struct {
	Bucket   string
	Key      string // object key, e.g. "jwks/cache-snapshot.json"
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
}

// NewS3Snapshot creates an S3-backed snapshot store.
func NewS3Snapshot(ctx context.Context, cfg S3SnapshotConfig) (*S3Snapshot, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("jwks: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Snapshot{client: client, bucket: cfg.Bucket, key: cfg.Key}, nil
}

type snapshotEntry struct {
	Issuer    string    `json:"issuer"`
	Kid       string    `json:"kid"`
	X         []byte    `json:"x"`
	Source    string    `json:"source"`
	ETag      string    `json:"etag,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Save serializes every live (non-expired) entry of entries to the
// snapshot object. The cache argument is not read.
func (s *S3Snapshot) Save(ctx context.Context, cache *Cache, entries map[[2]string]CacheEntry) error {
	out := make([]snapshotEntry, 0, len(entries))
	now := time.Now()
	for key, entry := range entries {
		if now.After(entry.ExpiresAt) {
			continue
		}
		out = append(out, snapshotEntry{
			Issuer: key[0], Kid: key[1],
			X: append([]byte(nil), entry.PublicKeyX25519[:]...),
			Source: entry.Source, ETag: entry.ETag,
			FetchedAt: entry.FetchedAt, ExpiresAt: entry.ExpiresAt,
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("jwks: marshal snapshot: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("jwks: put snapshot: %w", err)
	}
	return nil
}

// Load restores entries from the snapshot object into cache. A missing
// object is not an error — cold start with no prior snapshot is normal.
func (s *S3Snapshot) Load(ctx context.Context, cache *Cache) error {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("jwks: read snapshot: %w", err)
	}

	var entries []snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("jwks: unmarshal snapshot: %w", err)
	}

	for _, se := range entries {
		if len(se.X) != 32 {
			continue
		}
		var entry CacheEntry
		copy(entry.PublicKeyX25519[:], se.X)
		entry.Source = se.Source
		entry.ETag = se.ETag
		entry.FetchedAt = se.FetchedAt
		entry.ExpiresAt = se.ExpiresAt
		cache.Put(se.Issuer, se.Kid, entry)
	}
	return nil
}
