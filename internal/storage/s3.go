package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/internal/util"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/logger"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/overlap"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds a path-style client from the AWS_* environment. It
// returns nil when no bucket is configured or the config cannot be loaded.
func NewS3Client(ctx context.Context) *s3.Client {
	if util.GetEnv("AWS_BUCKET") == "" {
		return nil
	}
	region := util.GetEnvString("AWS_REGION", "us-east-1")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}
	if accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.Error("[Storage] Failed to load AWS config", "err", err)
		return nil
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Snapshot is the archived form of one overlap sweep.
type Snapshot struct {
	DetectedAt time.Time        `json:"detected_at"`
	Count      int              `json:"count"`
	Overlaps   []common.Overlap `json:"overlaps"`
}

// SnapshotArchiver writes every overlap sweep result to the bucket as
// <prefix>/<yyyy>/<mm>/<dd>/<RFC3339 timestamp>.json.
type SnapshotArchiver struct {
	client objectPutter
	bucket string
	prefix string
}

var _ overlap.Archiver = (*SnapshotArchiver)(nil)

func NewSnapshotArchiver(client objectPutter, bucket, prefix string) *SnapshotArchiver {
	if prefix == "" {
		prefix = "overlaps"
	}
	return &SnapshotArchiver{client: client, bucket: bucket, prefix: prefix}
}

func (a *SnapshotArchiver) Key(at time.Time) string {
	at = at.UTC()
	return path.Join(a.prefix, at.Format("2006/01/02"), at.Format("20060102T150405Z")+".json")
}

func (a *SnapshotArchiver) Archive(ctx context.Context, overlaps []common.Overlap, at time.Time) error {
	body, err := json.Marshal(Snapshot{DetectedAt: at.UTC(), Count: len(overlaps), Overlaps: overlaps})
	if err != nil {
		return fmt.Errorf("failed to encode overlap snapshot: %w", err)
	}

	key := a.Key(at)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload overlap snapshot to S3: %w", err)
	}

	logger.Debug("[Storage] Archived overlap snapshot", "key", key, "overlaps", len(overlaps))
	return nil
}
