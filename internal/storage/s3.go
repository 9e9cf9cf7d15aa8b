// Package storage provides the S3 adapter for CacheGate.
//
// The adapter serves both native AWS S3 and S3-compatible services (MinIO,
// RustFS, SeaweedFS, Garage, LocalStack) via the AWS SDK for Go v2: a custom
// endpoint URL plus path-style addressing is all that distinguishes them.
//
// Credentials are static when the config carries a key pair, otherwise the
// standard AWS credential chain (env vars, ~/.aws/credentials, IAM role).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/cachegate/cachegate/internal/config"
)

// S3API defines the subset of the AWS S3 client interface that the adapter
// uses. It is a superset of manager.UploadAPIClient so the same mock serves
// both the single-shot and the streaming-multipart upload paths in tests.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// S3Backend implements Backend against an S3 or S3-compatible bucket.
type S3Backend struct {
	// Bucket is the remote bucket name.
	Bucket string
	// client is the S3 client (satisfying the S3API interface).
	client S3API
	// uploader streams unknown-length bodies as multipart uploads.
	uploader *manager.Uploader
	// timeout bounds each storage operation.
	timeout time.Duration
}

// NewS3Backend creates an S3Backend from the resolved backend configuration.
// The SDK client uses static credentials when the config carries a key pair
// and the default chain otherwise; a custom endpoint and path-style
// addressing are applied for S3-compatible services.
func NewS3Backend(ctx context.Context, cfg config.BackendConfig) (*S3Backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for backend %q: %w", cfg.Name, err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.EndpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	slog.Info("s3 backend initialized",
		"backend", cfg.Name, "bucket", cfg.Bucket, "region", cfg.Region, "endpoint", cfg.EndpointURL)
	return NewS3BackendWithClient(cfg.Bucket, cfg.Timeout(), client), nil
}

// NewS3BackendWithClient creates an S3Backend with a pre-configured client.
// This is primarily used for testing with mock clients.
func NewS3BackendWithClient(bucket string, timeout time.Duration, client S3API) *S3Backend {
	return &S3Backend{
		Bucket:   bucket,
		client:   client,
		uploader: manager.NewUploader(client),
		timeout:  timeout,
	}
}

// Exists checks the key with HeadObject. A 404 is a confirmed miss; any
// other failure is ErrUnavailable so a flaky remote is never mistaken for
// an absent object.
func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: head %q: %v", ErrUnavailable, key, err)
	}
	return true, nil
}

// Put streams body to the key. With a known size it issues a single
// PutObject carrying Content-Length; without one it hands the reader to the
// SDK's multipart uploader, which chunks the stream without materializing
// it.
func (b *S3Backend) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	if size >= 0 {
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(b.Bucket),
			Key:           aws.String(key),
			Body:          body,
			ContentLength: aws.Int64(size),
		})
		if err != nil {
			return fmt.Errorf("%w: put %q: %v", ErrUnavailable, key, err)
		}
		return nil
	}

	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("%w: multipart put %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Get opens the object as a network stream. The operation timeout stays
// armed until the caller closes the body.
func (b *S3Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := opContext(ctx, b.timeout)

	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}
	return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, nil
}

// Ping lists at most one key from the bucket, verifying reachability,
// credentials, and read permission in a single round trip.
func (b *S3Backend) Ping(ctx context.Context) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	_, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.Bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("%w: ping bucket %q: %v", ErrUnavailable, b.Bucket, err)
	}
	return nil
}

// isS3NotFound checks if an AWS error is a 404/NoSuchKey/NotFound error.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" {
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}

// Ensure S3Backend implements Backend at compile time.
var _ Backend = (*S3Backend)(nil)
