// internal/adapters/storage/s3.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ammerola/stockledger/internal/core/ports"
)

// ErrObjectNotFound is returned by Download for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// S3Storage implements ports.ObjectStorage on S3 or an S3 compatible endpoint.
type S3Storage struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	bucket   string
	region   string
	logger   *slog.Logger
}

var _ ports.ObjectStorage = (*S3Storage)(nil)

// S3Config holds S3 configuration
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // For MinIO/LocalStack
	UsePathStyle    bool   // For MinIO/LocalStack
	CreateBucket    bool
}

// NewS3Storage creates a new S3 storage client
func NewS3Storage(ctx context.Context, cfg *S3Config, logger *slog.Logger) (*S3Storage, error) {
	awsCfg, err := buildAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.EndpointResolver = s3.EndpointResolverFromURL(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	storage := &S3Storage{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 8 * 1024 * 1024
		}),
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		region:  cfg.Region,
		logger:  logger.With(slog.String("storage", "s3")),
	}

	if cfg.CreateBucket {
		if err := storage.ensureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket: %w", err)
		}
	}

	storage.logger.Info("S3 storage initialized",
		slog.String("bucket", cfg.Bucket),
		slog.String("region", cfg.Region))

	return storage, nil
}

func buildAWSConfig(ctx context.Context, cfg *S3Config) (aws.Config, error) {
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		return config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			),
		)
	}
	return config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
}

func (s *S3Storage) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, createErr := s.client.CreateBucket(ctx, input); createErr != nil {
		return fmt.Errorf("bucket %s does not exist and could not be created: %w", s.bucket, createErr)
	}

	s.logger.Info("created S3 bucket", slog.String("bucket", s.bucket))
	return nil
}

// Upload streams body to key through the multipart uploader.
func (s *S3Storage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if contentType == "" {
		contentType = detectContentType(key)
	}

	result, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"uploaded-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	s.logger.InfoContext(ctx, "object uploaded",
		slog.String("key", key),
		slog.String("location", result.Location))
	return result.Location, nil
}

// Download returns the object body. The caller closes it.
func (s *S3Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return out.Body, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	s.logger.InfoContext(ctx, "object deleted", slog.String("key", key))
	return nil
}

func (s *S3Storage) List(ctx context.Context, prefix string) ([]ports.ObjectInfo, error) {
	var objects []ports.ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			info := ports.ObjectInfo{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			objects = append(objects, info)
		}
	}

	s.logger.DebugContext(ctx, "listed objects",
		slog.String("prefix", prefix),
		slog.Int("count", len(objects)))
	return objects, nil
}

// PresignGet returns a time limited download URL.
func (s *S3Storage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	request, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to create presigned URL: %w", err)
	}
	return request.URL, nil
}

func detectContentType(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
