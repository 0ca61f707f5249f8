package s3

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rescale/cloudfm/internal/cloud/storage"
	"github.com/rescale/cloudfm/internal/config"
)

// PartSize is the multipart chunk size used by the transfer manager.
const PartSize = 16 * 1024 * 1024

// Provider implements storage.Store for one S3 bucket.
type Provider struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

var _ storage.Store = (*Provider)(nil)

// NewProvider creates an S3 provider for cfg.Bucket.
func NewProvider(ctx context.Context, cfg config.S3Config, httpClient *nethttp.Client) (*Provider, error) {
	if cfg.Bucket == "" {
		return nil, config.ErrMissingS3Bucket
	}
	client, err := NewS3Client(ctx, cfg, httpClient)
	if err != nil {
		return nil, err
	}
	return newProvider(cfg, client), nil
}

func newProvider(cfg config.S3Config, client *s3.Client) *Provider {
	return &Provider{
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = PartSize
		}),
	}
}

// Name returns "s3://bucket/prefix".
func (p *Provider) Name() string {
	return "s3://" + storage.ObjectKey(p.bucket, p.prefix)
}

// Put uploads body under the provider prefix. Bodies larger than PartSize
// go through multipart upload.
func (p *Provider) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	objectKey := storage.ObjectKey(p.prefix, key)
	if objectKey == "" {
		return storage.ErrEmptyKey
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objectKey),
		Body:   body,
	}
	if size >= 0 && size < PartSize {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := p.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("s3 upload %s: %w", objectKey, err)
	}
	return nil
}
