package archive

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/draw-health/gateway/internal/model"
)

// gcsBackend uploads via the GCS client library - grounded on the
// teacher's gcpProvider.PutObj (ais/cloud/gcp.go), which opens a
// storage.Writer and copies through it the same way.
type gcsBackend struct {
	client *storage.Client
	bucket string
}

func newGCSBackend(cfg *model.ArchivalConfiguration) (Backend, error) {
	ctx := context.Background()
	var opts []option.ClientOption
	if cfg.GCSProjectID != "" {
		opts = append(opts, option.WithQuotaProject(cfg.GCSProjectID))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &gcsBackend{client: client, bucket: cfg.GCSBucket}, nil
}

func (b *gcsBackend) Provider() model.ArchivalProvider { return model.ArchivalProviderGCS }

func (b *gcsBackend) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
