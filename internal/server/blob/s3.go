// Package blob provides the S3-compatible implementation of the snapshot
// blob sink. Any object store exposing the S3 API (MinIO included) works.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/dropvault/internal/common"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client the sink needs. Satisfied by
// *s3.Client; tests substitute a fake.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options carries the connection settings for an S3-compatible endpoint.
type Options struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Sink uploads and downloads snapshot objects. Uploads are retried with
// bounded exponential backoff before the failure is surfaced.
type S3Sink struct {
	client S3API
	bucket string
}

// NewS3Sink builds a sink over a freshly configured S3 client.
func NewS3Sink(ctx context.Context, opts Options) (*S3Sink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.RootUser,
			opts.RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.BaseEndpoint)
	})

	return &S3Sink{client: client, bucket: opts.Bucket}, nil
}

// NewS3SinkWithClient builds a sink over an existing client. Used by tests.
func NewS3SinkWithClient(client S3API, bucket string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket}
}

// storageKey spreads snapshot objects over date-based prefixes, one unique
// object per upload so a confirmed pointer never gets overwritten.
func storageKey(label string) string {
	d := time.Now()
	return fmt.Sprintf("snapshots/%s/%d/%d/%d/%v.json", label, d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *S3Sink) Upload(ctx context.Context, label string, data []byte) (string, error) {
	key := storageKey(label)

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: &s.bucket,
			Key:    &key,
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

func (s *S3Sink) Download(ctx context.Context, remoteKey string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &remoteKey,
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", remoteKey, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", remoteKey, err)
	}
	return data, nil
}
