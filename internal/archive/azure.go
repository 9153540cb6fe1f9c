package archive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/Azure/azure-pipeline-go/pipeline"
	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/draw-health/gateway/internal/model"
)

// azureAccountKeyEnv mirrors the AWS/GCS backends' reliance on ambient
// credentials (default session / ADC) rather than a key in the catalog -
// the account key is the one Azure credential with no local-environment
// equivalent, so it's read from the environment instead of persisted
// alongside the rest of ArchivalConfiguration.
const azureAccountKeyEnv = "AZURE_STORAGE_KEY"

type azureBackend struct {
	containerURL azblob.ContainerURL
}

func newAzureBackend(cfg *model.ArchivalConfiguration) (Backend, error) {
	key := os.Getenv(azureAccountKeyEnv)
	credential, err := azblob.NewSharedKeyCredential(cfg.AzureAccount, key)
	if err != nil {
		return nil, err
	}
	p := azblob.NewPipeline(credential, azblob.PipelineOptions{Log: pipeline.LogOptions{}})
	u, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", cfg.AzureAccount, cfg.AzureContainer))
	if err != nil {
		return nil, err
	}
	return &azureBackend{containerURL: azblob.NewContainerURL(*u, p)}, nil
}

func (b *azureBackend) Provider() model.ArchivalProvider { return model.ArchivalProviderAzure }

func (b *azureBackend) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	blobURL := b.containerURL.NewBlockBlobURL(key)
	_, err := azblob.UploadStreamToBlockBlob(ctx, r, blobURL, azblob.UploadStreamToBlockBlobOptions{})
	return err
}
