package s3client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// Static credentials accepted by the fake server.
const (
	FakeAccessKeyID     = "test-key"
	FakeSecretAccessKey = "test-secret"
	FakeRegion          = "us-east-1"
)

// FakeS3 is an in-memory S3 endpoint for tests. It is closed when the test ends.
type FakeS3 struct {
	t      testing.TB
	server *httptest.Server
}

// NewFakeS3 starts a gofakes3 server and creates the given buckets on it.
func NewFakeS3(t testing.TB, buckets ...string) *FakeS3 {
	t.Helper()

	faker := gofakes3.New(s3mem.New())
	ts := httptest.NewServer(faker.Server())
	t.Cleanup(ts.Close)

	f := &FakeS3{t: t, server: ts}
	for _, bucket := range buckets {
		f.CreateBucket(bucket)
	}
	return f
}

// Endpoint is the base URL to put in AWS_ENDPOINT_URL_S3.
func (f *FakeS3) Endpoint() string {
	return f.server.URL
}

// Config returns a path-style client configuration for bucket on this server.
func (f *FakeS3) Config(bucket string) Config {
	return Config{
		Endpoint:        f.server.URL,
		Region:          FakeRegion,
		AccessKeyID:     FakeAccessKeyID,
		SecretAccessKey: FakeSecretAccessKey,
		BucketName:      bucket,
		UsePathStyle:    true,
	}
}

// Client returns a client bound to bucket on this server.
func (f *FakeS3) Client(bucket string) *Client {
	f.t.Helper()
	c, err := New(context.Background(), f.Config(bucket))
	if err != nil {
		f.t.Fatalf("s3 client for %s: %v", bucket, err)
	}
	return c
}

// CreateBucket adds an empty bucket.
func (f *FakeS3) CreateBucket(bucket string) {
	f.t.Helper()
	c := f.Client(bucket)
	_, err := c.s3Client.CreateBucket(context.Background(), &s3.CreateBucketInput{Bucket: &bucket})
	if err != nil {
		f.t.Fatalf("create bucket %s: %v", bucket, err)
	}
}

// TestClient returns a client for a fresh bucket on its own fake server.
func TestClient(t testing.TB, bucket string) *Client {
	t.Helper()
	return NewFakeS3(t, bucket).Client(bucket)
}
