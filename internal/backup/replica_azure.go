package backup

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureReplica copies archives to an Azure Blob Storage container
type AzureReplica struct {
	containerURL azblob.ContainerURL
	container    string
	prefix       string
}

// NewAzureReplica creates a new AzureReplica instance
func NewAzureReplica(config *AzureConfig) (*AzureReplica, error) {
	if config == nil {
		return nil, NewConfigurationError("Azure replica configuration is required", nil)
	}
	config.SetDefaults()
	if errs := config.validate(); errs.HasErrors() {
		return nil, NewConfigurationError("invalid Azure replica configuration", errs)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, NewReplicaError("failed to create Azure credentials", err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName)
	}
	serviceURL, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return nil, NewConfigurationError("failed to parse Azure service URL", err)
	}

	return &AzureReplica{
		containerURL: azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName),
		container:    config.ContainerName,
		prefix:       config.Prefix,
	}, nil
}

func (r *AzureReplica) Name() string {
	return "azure://" + r.container
}

// Upload copies the archive file into a block blob
func (r *AzureReplica) Upload(ctx context.Context, filename, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return NewReplicaError("failed to open archive for upload", err)
	}
	defer f.Close()

	blobURL := r.containerURL.NewBlockBlobURL(objectKey(r.prefix, filename))
	_, err = azblob.UploadFileToBlockBlob(ctx, f, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024, // 4MB blocks
		Parallelism: 16,
		Metadata: azblob.Metadata{
			"archivename": filename,
		},
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: "application/x-tar",
		},
	})
	if err != nil {
		return NewReplicaError(fmt.Sprintf("failed to upload %s to Azure", filename), err)
	}
	return nil
}

// Delete removes the archive blob and its snapshots
func (r *AzureReplica) Delete(ctx context.Context, filename string) error {
	blobURL := r.containerURL.NewBlockBlobURL(objectKey(r.prefix, filename))
	if _, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{}); err != nil {
		return NewReplicaError(fmt.Sprintf("failed to delete %s from Azure", filename), err)
	}
	return nil
}
