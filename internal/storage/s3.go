package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Options configures the S3 client. Empty credentials fall back to the default
// AWS chain.
type Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Client wraps the AWS S3 client for source downloads and output uploads.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucketName string
}

// NewS3Client creates a new S3 client
func NewS3Client(ctx context.Context, opts Options) (*S3Client, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg)
	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		bucketName: opts.Bucket,
	}, nil
}

// Client exposes the raw client for s3:// sources.
func (s *S3Client) Client() *s3.Client { return s.client }

func (s *S3Client) Bucket() string { return s.bucketName }

// UploadFile stores data under key and returns its s3:// URL.
func (s *S3Client) UploadFile(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error) {
	if s.bucketName == "" {
		return "", fmt.Errorf("s3 bucket not configured")
	}
	key = strings.TrimPrefix(key, "/")
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    meta,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("bucket", s.bucketName).Str("key", key).Int("size", len(data)).Msg("uploaded object to s3")
	return fmt.Sprintf("s3://%s/%s", s.bucketName, key), nil
}

// Ping checks that the bucket is reachable.
func (s *S3Client) Ping(ctx context.Context) error {
	if s.bucketName == "" {
		return fmt.Errorf("bucket not configured")
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	return err
}
