// Package s3 uploads objects to an S3 bucket (or an S3-compatible endpoint)
// through the aws-sdk-go-v2 transfer manager.
package s3

import (
	"context"
	"fmt"
	nethttp "net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rescale/cloudfm/internal/config"
)

// NewS3Client builds an S3 client from cfg.
//
// The HTTP client is shared with every other request the process makes so
// the connection pool survives across uploads. Static credentials are used
// when an access key is configured; otherwise the default AWS chain applies
// (environment, shared config, instance role).
func NewS3Client(ctx context.Context, cfg config.S3Config, httpClient *nethttp.Client) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if httpClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(httpClient))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			// MinIO and friends only speak path-style addressing
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		// Whole-file retries are driven by the upload service
		o.RetryMaxAttempts = 1
	}), nil
}
