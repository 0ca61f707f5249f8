// Package providers creates the storage backend selected by configuration.
package providers

import (
	"context"
	"fmt"

	"github.com/rescale/cloudfm/internal/cloud/providers/azure"
	"github.com/rescale/cloudfm/internal/cloud/providers/local"
	"github.com/rescale/cloudfm/internal/cloud/providers/s3"
	"github.com/rescale/cloudfm/internal/cloud/storage"
	"github.com/rescale/cloudfm/internal/config"
	"github.com/rescale/cloudfm/internal/http"
	"github.com/rescale/cloudfm/internal/logging"
)

// NewStore creates the Store for cfg.Upload.Backend.
func NewStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (storage.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	switch cfg.Upload.Backend {
	case config.BackendLocal, "":
		return local.NewProvider(cfg.Local.Root)

	case config.BackendS3:
		httpClient, err := http.CreateOptimizedClient(&cfg.Network, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		return s3.NewProvider(ctx, cfg.S3, httpClient)

	case config.BackendAzure:
		httpClient, err := http.CreateOptimizedClient(&cfg.Network, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		retrying := http.NewRetryableClient(httpClient, cfg.Upload.MaxRetries, logger.Named("azure"))
		return azure.NewProvider(cfg.Azure, retrying)

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.Upload.Backend)
	}
}
