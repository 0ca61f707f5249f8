// Package azure uploads blobs to an Azure Storage container.
package azure

import (
	"fmt"
	nethttp "net/http"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/rescale/cloudfm/internal/config"
)

// NewAzureClient creates a blob service client and resolves the target
// container from cfg.
//
// A ContainerURL carrying a SAS token needs no credential. Otherwise the
// shared key comes from AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY and is
// used against AccountURL.
func NewAzureClient(cfg config.AzureConfig, httpClient *nethttp.Client) (*azblob.Client, string, error) {
	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			// The retrying HTTP client handles transient failures
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	if httpClient != nil {
		opts.Transport = httpClient // keeps the shared connection pool
	}

	if cfg.ContainerURL != "" {
		serviceURL, container, err := splitContainerURL(cfg.ContainerURL)
		if err != nil {
			return nil, "", err
		}
		client, err := azblob.NewClientWithNoCredential(serviceURL, opts)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Azure client: %w", err)
		}
		return client, container, nil
	}

	if cfg.AccountURL == "" || cfg.Container == "" {
		return nil, "", config.ErrMissingAzureContainer
	}
	account, key := os.Getenv("AZURE_STORAGE_ACCOUNT"), os.Getenv("AZURE_STORAGE_KEY")
	if account == "" || key == "" {
		return nil, "", fmt.Errorf("AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY are required without a container SAS URL")
	}
	cred, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, "", fmt.Errorf("invalid Azure shared key: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(cfg.AccountURL, cred, opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create Azure client: %w", err)
	}
	return client, cfg.Container, nil
}

// splitContainerURL turns https://acct.blob.core.windows.net/container?sas
// into the service URL (SAS preserved) and the container name.
func splitContainerURL(containerURL string) (string, string, error) {
	parts, err := azblob.ParseURL(containerURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid Azure container URL: %w", err)
	}
	container := parts.ContainerName
	if container == "" {
		return "", "", fmt.Errorf("Azure container URL has no container: %s", parts.Host)
	}
	parts.ContainerName = ""
	parts.BlobName = ""
	return parts.String(), container, nil
}
