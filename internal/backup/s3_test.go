package backup

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/crmkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	failures int
	err      error
	calls    int
	bodies   []string
	keys     []string
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	body, _ := io.ReadAll(in.Body)
	f.bodies = append(f.bodies, string(body))
	f.keys = append(f.keys, aws.ToString(in.Key))
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func newTestUploader(p *fakePutter) *S3Uploader {
	return &S3Uploader{
		client:     p,
		bucket:     "crm",
		log:        logging.Nop(),
		maxRetries: 3,
		retryDelay: time.Millisecond,
	}
}

func TestUpload_Success(t *testing.T) {
	p := &fakePutter{}
	key, err := newTestUploader(p).Upload(context.Background(), "crm_backup_2024-03-01.json", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "backups/crm_backup_2024-03-01.json", key)
	assert.Equal(t, 1, p.calls)
}

func TestUpload_RetriesTransientFailures(t *testing.T) {
	p := &fakePutter{failures: 2, err: errors.New("503")}
	_, err := newTestUploader(p).Upload(context.Background(), "b.json", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []string{"payload", "payload", "payload"}, p.bodies)
}

func TestUpload_GivesUp(t *testing.T) {
	boom := errors.New("503")
	p := &fakePutter{failures: 100, err: boom}
	_, err := newTestUploader(p).Upload(context.Background(), "b.json", []byte("x"))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, p.calls)
}

func TestUpload_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &fakePutter{failures: 100, err: errors.New("503")}
	_, err := newTestUploader(p).Upload(ctx, "b.json", []byte("x"))
	require.Error(t, err)
	assert.LessOrEqual(t, p.calls, 1)
}

func TestNewS3Uploader(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-west-1", lo.Region)
		assert.NotNil(t, lo.Credentials)
		return aws.Config{}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) putObjectAPI {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &fakePutter{}
	}

	u, err := NewS3Uploader(context.Background(), S3Config{
		Endpoint:  "http://127.0.0.1:9000",
		Region:    "eu-west-1",
		Bucket:    "crm",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	}, logging.Nop())
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)
}

func TestNewS3Uploader_Errors(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), S3Config{}, logging.Nop())
	require.Error(t, err)

	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })
	boom := errors.New("no config")
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, boom
	}
	_, err = NewS3Uploader(context.Background(), S3Config{Bucket: "crm"}, logging.Nop())
	assert.ErrorIs(t, err, boom)
}
