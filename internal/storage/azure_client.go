package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// realAzureClient wraps the official Azure SDK client to satisfy
// AzureBlobAPI, pinned to one container.
type realAzureClient struct {
	client    *azblob.Client
	container string
}

// newRealAzureClient creates a real Azure Blob client. If connectionString
// is non-empty, it uses connection string auth; otherwise it falls back to
// DefaultAzureCredential against the account URL.
func newRealAzureClient(accountURL, connectionString, container string) (*realAzureClient, error) {
	if connectionString != "" {
		client, err := azblob.NewClientFromConnectionString(connectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("creating Azure Blob client from connection string: %w", err)
		}
		return &realAzureClient{client: client, container: container}, nil
	}

	if accountURL == "" {
		return nil, fmt.Errorf("azure backend requires account_url or connection_string")
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure credential: %w", err)
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure Blob client: %w", err)
	}
	return &realAzureClient{client: client, container: container}, nil
}

func (c *realAzureClient) Upload(ctx context.Context, blob string, body io.Reader) error {
	_, err := c.client.UploadStream(ctx, c.container, blob, body, nil)
	return err
}

func (c *realAzureClient) Download(ctx context.Context, blob string) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, c.container, blob, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *realAzureClient) Exists(ctx context.Context, blob string) (bool, error) {
	_, err := c.client.ServiceClient().NewContainerClient(c.container).NewBlobClient(blob).GetProperties(ctx, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *realAzureClient) PingContainer(ctx context.Context) error {
	_, err := c.client.ServiceClient().NewContainerClient(c.container).GetProperties(ctx, nil)
	return err
}

// isAzureNotFound checks if an Azure error is a blob-not-found error.
func isAzureNotFound(err error) bool {
	if err == nil {
		return false
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return true
	}
	// Fallback for wrapped transport errors.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blobnotfound") || strings.Contains(msg, "404")
}
