package r2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	conf "github.com/ryan4259/r2-image-compressor/internal/config"
)

const (
	defaultMaxRetries     = 3
	defaultRetryBaseDelay = 300 * time.Millisecond
)

// ErrObjectNotFound reports a Get against a key the bucket does not hold.
var ErrObjectNotFound = errors.New("object not found")

// Storage talks to an S3-compatible bucket, Cloudflare R2 in production.
// One instance is shared by every request; the underlying client is safe for
// concurrent use and read-only after construction.
type Storage struct {
	bucket         string
	maxRetries     int
	retryBaseDelay time.Duration

	client   *s3.Client
	uploader *manager.Uploader
}

func NewStorage(ctx context.Context, cfg *conf.R2Config) (*Storage, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretKey, "",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	s := &Storage{
		bucket:         cfg.BucketName,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
		client:         client,
		uploader:       manager.NewUploader(client),
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.retryBaseDelay <= 0 {
		s.retryBaseDelay = defaultRetryBaseDelay
	}
	return s, nil
}

// Put writes one object, retrying transient failures with jittered backoff.
// Keys are derived uniquely per request, so repeating a put is harmless.
func (s *Storage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	var err error
	for attempt := 1; ; attempt++ {
		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		if err == nil {
			return nil
		}
		if attempt > s.maxRetries || ctx.Err() != nil {
			break
		}

		timer := time.NewTimer(s.backoffDelay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("put %q: %w", key, ctx.Err())
		}
	}
	return fmt.Errorf("put %q: %w", key, err)
}

// Get fetches an object and its content type.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, "", fmt.Errorf("get %q: %w", key, ErrObjectNotFound)
		}
		return nil, "", fmt.Errorf("get %q: %w", key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, "", fmt.Errorf("read body of %q: %w", key, err)
	}

	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return buf.Bytes(), contentType, nil
}

// Delete removes one object. S3 treats deleting an absent key as success,
// which suits the janitor's retry semantics.
func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *Storage) backoffDelay(attempt int) time.Duration {
	delay := s.retryBaseDelay << (attempt - 1)
	jitter := time.Duration(int64(delay) / 10)
	return delay - (jitter / 2) + time.Duration(time.Now().UnixNano()%int64(jitter+1))
}
