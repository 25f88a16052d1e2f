// Package s3 implements replication.RGTransport against an S3-compatible
// object store, for acquisition gateways that replicate straight into
// object storage instead of onto a peer RG's own HTTP surface.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/syndicate-project/gateway/pkg/replication"
)

// Config configures the S3 RG transport.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	KeyPrefix      string
	ForcePathStyle bool
}

// Transport is an S3-backed replication.RGTransport. One Transport
// serves every target ID handed to it; targetID only ever selects a
// TargetLookup in the HTTP transport, so here it is accepted and
// ignored — an S3-backed volume has exactly one logical RG, the
// bucket.
type Transport struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// New builds a Transport from an existing S3 client.
func New(client *s3.Client, cfg Config) *Transport {
	return &Transport{client: client, bucket: cfg.Bucket, keyPrefix: cfg.KeyPrefix}
}

// NewFromConfig builds a Transport, constructing its own S3 client from
// cfg via the default AWS credential chain.
func NewFromConfig(ctx context.Context, cfg Config) (*Transport, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("replication/s3: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return New(client, cfg), nil
}

func (t *Transport) blockKey(f replication.FileSnapshot, blockID uint64) string {
	return fmt.Sprintf("%sblocks/%d/%d/%d", t.keyPrefix, f.VolumeID, f.FileID, blockID)
}

func (t *Transport) manifestKey(f replication.FileSnapshot) string {
	return fmt.Sprintf("%smanifests/%d/%d", t.keyPrefix, f.VolumeID, f.FileID)
}

func (t *Transport) PutBlock(ctx context.Context, _ uint64, f replication.FileSnapshot, blockID uint64, payload []byte) error {
	return t.put(ctx, t.blockKey(f, blockID), payload)
}

func (t *Transport) PutManifest(ctx context.Context, _ uint64, f replication.FileSnapshot, payload []byte) error {
	return t.put(ctx, t.manifestKey(f), payload)
}

func (t *Transport) DeleteBlock(ctx context.Context, _ uint64, f replication.FileSnapshot, blockID uint64) error {
	return t.delete(ctx, t.blockKey(f, blockID))
}

func (t *Transport) DeleteManifest(ctx context.Context, _ uint64, f replication.FileSnapshot) error {
	return t.delete(ctx, t.manifestKey(f))
}

func (t *Transport) put(ctx context.Context, key string, data []byte) error {
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("replication/s3: put %s: %w", key, err)
	}
	return nil
}

func (t *Transport) delete(ctx context.Context, key string) error {
	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("replication/s3: delete %s: %w", key, err)
	}
	return nil
}

// HealthCheck verifies the bucket is reachable (HeadBucket); write access
// is not tested.
func (t *Transport) HealthCheck(ctx context.Context) error {
	_, err := t.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(t.bucket)})
	if err != nil {
		return fmt.Errorf("replication/s3: health check: %w", err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "NoSuchKey") || strings.Contains(s, "NotFound") || strings.Contains(s, "404")
}

var _ replication.RGTransport = (*Transport)(nil)
