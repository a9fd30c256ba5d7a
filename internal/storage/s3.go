package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weather-etl/internal/config"
)

// KeyPrefix is the folder every artifact is stored under.
const KeyPrefix = "weather-data"

var (
	// ErrEmptyPath is returned when no artifact path or file name was handed over.
	ErrEmptyPath = errors.New("no artifact path received")
	// ErrUpload wraps every credential or transfer failure.
	ErrUpload = errors.New("error uploading to s3")
)

// PutObjectAPI is the subset of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies artifact files into a bucket.
type Uploader struct {
	bucket    string
	newClient func(ctx context.Context) (PutObjectAPI, error)

	mu     sync.Mutex
	client PutObjectAPI
}

// NewUploader returns an Uploader that writes through client.
func NewUploader(client PutObjectAPI, bucket string) *Uploader {
	return &Uploader{
		bucket: bucket,
		newClient: func(context.Context) (PutObjectAPI, error) {
			return client, nil
		},
	}
}

// NewS3Uploader returns an Uploader backed by the AWS SDK. The client is
// built on the first upload so credential problems surface as upload
// errors of that run.
func NewS3Uploader(cfg config.AWSConfig) *Uploader {
	return &Uploader{
		bucket: cfg.Bucket,
		newClient: func(ctx context.Context) (PutObjectAPI, error) {
			return newS3Client(ctx, cfg)
		},
	}
}

func newS3Client(ctx context.Context, cfg config.AWSConfig) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = config.DefaultRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// ObjectKey derives the storage key for an artifact path. The file name is
// kept verbatim.
func ObjectKey(artifactPath string) (string, error) {
	if artifactPath == "" {
		return "", ErrEmptyPath
	}
	name := filepath.Base(artifactPath)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: no file name in %q", ErrEmptyPath, artifactPath)
	}
	return path.Join(KeyPrefix, name), nil
}

// Upload stores the artifact at artifactPath and returns its object key.
func (u *Uploader) Upload(ctx context.Context, artifactPath string) (string, error) {
	key, err := ObjectKey(artifactPath)
	if err != nil {
		return "", err
	}

	client, err := u.s3Client(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}

	f, err := os.Open(artifactPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	defer f.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}

	log.WithFields(log.Fields{
		"bucket": u.bucket,
		"key":    key,
	}).Infof("file %s uploaded to s3://%s/%s", filepath.Base(artifactPath), u.bucket, key)
	return key, nil
}

func (u *Uploader) s3Client(ctx context.Context) (PutObjectAPI, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.client != nil {
		return u.client, nil
	}
	client, err := u.newClient(ctx)
	if err != nil {
		return nil, err
	}
	u.client = client
	return client, nil
}
