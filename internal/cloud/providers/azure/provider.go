package azure

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/rescale/cloudfm/internal/cloud/storage"
	"github.com/rescale/cloudfm/internal/config"
)

// BlockSize is the staged block size for UploadStream.
const BlockSize = 8 * 1024 * 1024

// Provider implements storage.Store for one Azure container.
type Provider struct {
	client    *azblob.Client
	container string
}

var _ storage.Store = (*Provider)(nil)

// NewProvider creates an Azure provider from cfg.
func NewProvider(cfg config.AzureConfig, httpClient *nethttp.Client) (*Provider, error) {
	client, container, err := NewAzureClient(cfg, httpClient)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client, container: container}, nil
}

// Name returns "azure://container".
func (p *Provider) Name() string {
	return "azure://" + p.container
}

// Put streams body into a block blob.
func (p *Provider) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	blobName := storage.ObjectKey("", key)
	if blobName == "" {
		return storage.ErrEmptyKey
	}

	_, err := p.client.UploadStream(ctx, p.container, blobName, body, &azblob.UploadStreamOptions{
		BlockSize:   BlockSize,
		Concurrency: 2,
	})
	if err != nil {
		return fmt.Errorf("azure upload %s: %w", blobName, err)
	}
	return nil
}
