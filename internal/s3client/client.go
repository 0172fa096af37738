// Package s3client mirrors the session artifact and publishes run reports to an
// S3-compatible bucket. Tests point it at gofakes3.
package s3client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrObjectNotFound is returned by GetObject for a key that does not exist.
var ErrObjectNotFound = errors.New("s3client: object not found")

// Client is bound to one bucket.
type Client struct {
	s3Client *s3.Client
	bucket   string
}

// Config selects the endpoint, credentials and bucket.
type Config struct {
	Endpoint        string // empty for AWS; AWS_ENDPOINT_URL_S3 otherwise
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// UsePathStyle is needed by gofakes3, MinIO and most self-hosted endpoints.
	UsePathStyle bool
}

// New loads the default AWS configuration chain, with static credentials when both
// keys are given, and binds the client to cfg.BucketName.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errors.New("s3client: bucket name is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3client: load AWS config: %w", err)
	}

	return NewFromS3Client(s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), cfg.BucketName), nil
}

// NewFromS3Client binds an existing SDK client to bucket.
func NewFromS3Client(s3Client *s3.Client, bucket string) *Client {
	return &Client{s3Client: s3Client, bucket: bucket}
}

// PutObject overwrites key. Objects are private: session artifacts carry live cookies.
func (c *Client) PutObject(ctx context.Context, key string, content []byte, contentType string) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3client: put %s: %w", c.ObjectURI(key), err)
	}
	return nil
}

// GetObject returns the content of key, or ErrObjectNotFound.
func (c *Client) GetObject(ctx context.Context, key string) ([]byte, error) {
	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nf *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nf) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("s3client: get %s: %w", c.ObjectURI(key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3client: read %s: %w", c.ObjectURI(key), err)
	}
	return data, nil
}

// ObjectURI returns an s3:// reference for logs and reports.
func (c *Client) ObjectURI(key string) string {
	return "s3://" + c.bucket + "/" + strings.TrimPrefix(key, "/")
}
