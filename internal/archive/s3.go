package archive

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/draw-health/gateway/internal/model"
)

// s3Backend uploads to S3 or, when cfg.S3Endpoint is set, a MinIO-style
// S3-compatible endpoint - grounded on the teacher's awsProvider
// (ais/cloud/aws.go), stripped of its read-path (ListObjects, GetObj,
// HeadObj) since archival never reads objects back.
type s3Backend struct {
	uploader *s3manager.Uploader
	bucket   string
}

func newS3Backend(cfg *model.ArchivalConfiguration) (Backend, error) {
	awsCfg := aws.NewConfig()
	if cfg.S3Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.S3Region)
	}
	if cfg.S3Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.S3Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
		Config:            *awsCfg,
	})
	if err != nil {
		return nil, err
	}
	return &s3Backend{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.S3Bucket,
	}, nil
}

func (b *s3Backend) Provider() model.ArchivalProvider { return model.ArchivalProviderS3 }

func (b *s3Backend) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := b.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	return err
}
