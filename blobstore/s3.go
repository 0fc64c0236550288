package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client is the narrow slice of the S3 API used by S3Store.
// Declared as an interface so tests can substitute a mock client.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config contains connection settings for S3 and S3-compatible services.
type S3Config struct {
	Bucket         string
	Region         string
	AccessKeyID    string
	SecretKey      string
	Endpoint       string // optional: for S3-compatible services
	ForcePathStyle bool   // for S3-compatible services like MinIO
	Namespace      string // blob-name prefix; DefaultNamespace if empty
}

// S3Option configures an S3Store.
type S3Option func(*S3Store)

// WithS3Client sets a pre-configured client, bypassing AWS config loading.
// Useful for testing with mocks.
func WithS3Client(client S3Client) S3Option {
	return func(s *S3Store) {
		s.client = client
	}
}

// S3Store implements Store on Amazon S3 or an S3-compatible service.
// Safe for concurrent use.
type S3Store struct {
	client    S3Client
	bucket    string
	namespace string
}

// NewS3Store creates an S3-backed blob store.
// Unless a client is injected via WithS3Client, AWS configuration is loaded
// with the region and static credentials from cfg.
func NewS3Store(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blobstore: empty S3 bucket")
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	s := &S3Store{bucket: cfg.Bucket, namespace: ns}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	if cfg.Region == "" {
		return nil, fmt.Errorf("blobstore: empty S3 region")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("blobstore: load AWS config: %w", err)
	}

	s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return s, nil
}

// Name returns the deterministic blob name for key.
func (s *S3Store) Name(key string) string {
	return blobName(s.namespace, key)
}

// Exists reports whether an object for key is present.
func (s *S3Store) Exists(ctx context.Context, key string) bool {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Name(key)),
	})
	return err == nil
}

// Read returns the object contents, or ErrNotFound for a missing key.
func (s *S3Store) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Name(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: get %s: %w", s.Name(key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s body: %w", s.Name(key), err)
	}
	return data, nil
}

// Write uploads data under key's blob name.
func (s *S3Store) Write(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Name(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("blobstore: put %s: %w", s.Name(key), err)
	}
	return nil
}

// Delete removes the object for key.
// S3 deletes are idempotent; a missing key reports ErrNotFound only when the
// service signals it, otherwise the call succeeds.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Name(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("blobstore: delete %s: %w", s.Name(key), err)
	}
	return nil
}

// Count returns the number of objects bearing this store's namespace.
func (s *S3Store) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.listNamespace(ctx, func(objs []types.Object) error {
		count += len(objs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteAll removes every object bearing this store's namespace.
func (s *S3Store) DeleteAll(ctx context.Context) error {
	return s.listNamespace(ctx, func(objs []types.Object) error {
		for _, obj := range objs {
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return fmt.Errorf("blobstore: delete %s: %w", aws.ToString(obj.Key), err)
			}
		}
		return nil
	})
}

// listNamespace pages through all namespace-prefixed objects, invoking fn
// once per page.
func (s *S3Store) listNamespace(ctx context.Context, fn func([]types.Object) error) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.namespace),
	}
	for {
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return fmt.Errorf("blobstore: list %s: %w", s.namespace, err)
		}
		if err := fn(out.Contents); err != nil {
			return err
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			return nil
		}
		input.ContinuationToken = out.NextContinuationToken
	}
}

// isS3NotFound matches both the typed GetObject error and the generic
// "NotFound" code HeadObject-style operations return.
func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}

var _ Store = (*S3Store)(nil)
