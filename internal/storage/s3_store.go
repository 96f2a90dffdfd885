package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/TheMichaelB/vocabsync/internal/events"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Store keeps one object per key under a bucket prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	logger *events.Logger
}

// NewS3Store creates a store using the default AWS credential chain.
func NewS3Store(ctx context.Context, bucket, prefix string, logger *events.Logger) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewS3StoreWithClient(s3.NewFromConfig(cfg), bucket, prefix, logger), nil
}

// NewS3StoreWithClient creates a store over an existing client.
func NewS3StoreWithClient(client S3API, bucket, prefix string, logger *events.Logger) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.WithField("component", "s3_store"),
	}
}

// Get downloads the object for key.
func (s *S3Store) Get(ctx context.Context, key string) (string, error) {
	value, _, err := s.getWithETag(ctx, s.objectKey(key))
	return value, err
}

// Set uploads value as the object for key.
func (s *S3Store) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	objectKey := s.objectKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        strings.NewReader(value),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":  objectKey,
		"size": len(value),
	}).Debug("Wrote object to S3")

	return nil
}

// CompareAndSwap reads the object's ETag and writes with If-Match (or
// If-None-Match when old is empty), so S3 rejects the write if another
// writer got there first.
func (s *S3Store) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	objectKey := s.objectKey(key)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        strings.NewReader(value),
		ContentType: aws.String("application/json"),
	}

	current, etag, err := s.getWithETag(ctx, objectKey)
	switch {
	case errors.Is(err, ErrNotFound):
		if old != "" {
			return false, nil
		}
		input.IfNoneMatch = aws.String("*")
	case err != nil:
		return false, err
	case old == "" || current != old:
		return false, nil
	default:
		input.IfMatch = aws.String(etag)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "PreconditionFailed", "ConditionalRequestConflict":
				s.logger.WithField("key", objectKey).Debug("Conditional put lost")
				return false, nil
			}
		}
		return false, fmt.Errorf("s3 conditional put: %w", err)
	}

	return true, nil
}

func (s *S3Store) getWithETag(ctx context.Context, objectKey string) (string, string, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("s3 get object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return "", "", fmt.Errorf("s3 read body: %w", err)
	}
	return string(data), aws.ToString(result.ETag), nil
}

// Remove deletes the object for key.
func (s *S3Store) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

// Keys lists the keys under the store prefix.
func (s *S3Store) Keys(ctx context.Context) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.prefix))
		}
	}

	return keys, nil
}

// Close releases resources.
func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) objectKey(key string) string {
	return s.prefix + key
}
