package publish

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"apex-preview/internal/bundler"
	"apex-preview/internal/config"
	"apex-preview/internal/logging"
)

// Uploader is the subset of manager.Uploader used here.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Publisher uploads bundles to an S3 bucket.
type S3Publisher struct {
	uploader  Uploader
	bucket    string
	prefix    string
	publicURL string
	log       *zap.Logger
}

// NewS3Publisher builds an uploader from cfg. Static keys are used when both
// are set; the default credential chain otherwise.
func NewS3Publisher(ctx context.Context, cfg config.PublishConfig) (*S3Publisher, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3PublisherWithUploader(manager.NewUploader(client), cfg.S3Bucket, cfg.S3Prefix, cfg.PublicURL), nil
}

// NewS3PublisherWithUploader creates a publisher over an existing uploader.
func NewS3PublisherWithUploader(u Uploader, bucket, prefix, publicURL string) *S3Publisher {
	return &S3Publisher{
		uploader:  u,
		bucket:    bucket,
		prefix:    prefix,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       logging.Named("publish-s3"),
	}
}

// Name implements Publisher.
func (p *S3Publisher) Name() string { return "s3" }

// Publish implements Publisher. The document is uploaded last, so a reader
// that can see index.html can also fetch its assets.
func (p *S3Publisher) Publish(ctx context.Context, name string, b *bundler.Bundle) (*Result, error) {
	base, objs, err := layout(p.prefix, name, b)
	if err != nil {
		return nil, err
	}

	var location string
	for i := len(objs) - 1; i >= 0; i-- {
		o := objs[i]
		out, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:       aws.String(p.bucket),
			Key:          aws.String(o.key),
			Body:         bytes.NewReader(o.body),
			ContentType:  aws.String(o.contentType),
			CacheControl: aws.String("public, max-age=31536000, immutable"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", o.key, err)
		}
		if i == 0 && out != nil {
			location = out.Location
		}
	}

	url := location
	if p.publicURL != "" {
		url = p.publicURL + "/" + objs[0].key
	}
	if url == "" {
		url = fmt.Sprintf("s3://%s/%s", p.bucket, objs[0].key)
	}
	p.log.Info("bundle published", zap.String("bucket", p.bucket), zap.String("key", base), zap.Int("files", len(objs)))
	return &Result{
		Target: p.Name(),
		URL:    url,
		Key:    base,
		Hash:   b.Hash,
		Size:   totalSize(objs),
		Files:  keys(objs),
	}, nil
}
