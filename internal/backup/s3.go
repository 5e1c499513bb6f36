package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"

	"github.com/dmitrijs2005/crmkeeper/internal/logging"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) putObjectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates the bucket. An empty Endpoint uses AWS itself.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3Uploader copies export files to an S3-compatible bucket.
type S3Uploader struct {
	client     putObjectAPI
	bucket     string
	log        logging.Logger
	maxRetries uint64
	retryDelay time.Duration
}

func NewS3Uploader(ctx context.Context, c S3Config, log logging.Logger) (*S3Uploader, error) {
	if c.Bucket == "" {
		return nil, errors.New("s3 bucket is not configured")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{
		client:     client,
		bucket:     c.Bucket,
		log:        log,
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
	}, nil
}

// Upload stores data under backups/<name>, retrying transient failures with
// exponential backoff. It returns the object key.
func (u *S3Uploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	key := "backups/" + name

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = u.retryDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, u.maxRetries), ctx)

	attempt := 0
	op := func() error {
		attempt++
		_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			u.log.Warn(ctx, "backup upload failed", "attempt", attempt, "err", err)
		}
		return err
	}

	if err := backoff.Retry(op, policy); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	u.log.Info(ctx, "backup uploaded", "bucket", u.bucket, "key", key)
	return key, nil
}
