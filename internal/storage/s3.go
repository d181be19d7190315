package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rotisserie/eris"
)

// S3Config holds connection settings for S3-compatible object storage.
// MinIO is reached through the same client with path-style addressing.
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
}

// ConfigFromEnv reads S3 settings from S3_* environment variables. A nil
// result means S3_ENDPOINT is unset and archival stays on the filesystem.
func ConfigFromEnv() *S3Config {
	endpoint := strings.TrimSpace(os.Getenv("S3_ENDPOINT"))
	if endpoint == "" {
		return nil
	}
	cfg := &S3Config{
		Endpoint:        endpoint,
		AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		Bucket:          "inboxd",
		Region:          "us-east-1",
		UseSSL:          true,
	}
	if b := os.Getenv("S3_BUCKET"); b != "" {
		cfg.Bucket = b
	}
	if r := os.Getenv("AWS_REGION"); r != "" {
		cfg.Region = r
	}
	if v := os.Getenv("S3_USE_SSL"); v != "" {
		cfg.UseSSL, _ = strconv.ParseBool(v)
	}
	return cfg
}

// endpointURL returns the endpoint with an explicit scheme.
func (cfg *S3Config) endpointURL() string {
	if strings.Contains(cfg.Endpoint, "://") {
		return cfg.Endpoint
	}
	if cfg.UseSSL {
		return "https://" + cfg.Endpoint
	}
	return "http://" + cfg.Endpoint
}

// S3BlobStore archives raw messages in a single bucket, all keys under an
// optional prefix.
type S3BlobStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3BlobStore connects to the configured endpoint and ensures the bucket
// exists.
func NewS3BlobStore(ctx context.Context, cfg *S3Config, prefix string) (*S3BlobStore, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, eris.New("storage: S3 endpoint required")
	}
	if cfg.Bucket == "" {
		return nil, eris.New("storage: S3 bucket required")
	}

	endpoint := cfg.endpointURL()
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, opts ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:               endpoint,
			HostnameImmutable: true,
			SigningRegion:     cfg.Region,
		}, nil
	})

	client := s3.NewFromConfig(aws.Config{
		Region:                      cfg.Region,
		Credentials:                 credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		EndpointResolverWithOptions: resolver,
	}, func(o *s3.Options) {
		o.UsePathStyle = true // required for MinIO
	})

	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	s := &S3BlobStore{client: client, bucket: cfg.Bucket, prefix: prefix}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *S3BlobStore) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		// Bucket may have been created concurrently
		var conflict *types.BucketAlreadyOwnedByYou
		if errors.As(err, &conflict) {
			return nil
		}
		return eris.Wrapf(err, "create bucket %s", s.bucket)
	}
	return nil
}

func (s *S3BlobStore) Write(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return eris.Wrapf(err, "put %s", key)
	}
	return nil
}

// Read returns ErrNotFound when the object does not exist.
func (s *S3BlobStore) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "get %s", key)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// List returns keys under prefix, paginating and stripping the store prefix.
func (s *S3BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var contToken *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix + prefix),
			ContinuationToken: contToken,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "list %s", prefix)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil && *obj.Key != "" {
				keys = append(keys, strings.TrimPrefix(*obj.Key, s.prefix))
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		contToken = out.NextContinuationToken
	}
	return keys, nil
}

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")
