package s3client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_PutOverwritesAndGets(t *testing.T) {
	t.Parallel()
	c := TestClient(t, "artifacts")
	ctx := context.Background()

	_, err := c.GetObject(ctx, "auth/user.json")
	require.True(t, errors.Is(err, ErrObjectNotFound), "got %v", err)

	require.NoError(t, c.PutObject(ctx, "auth/user.json", []byte(`{"cookies":[]}`), "application/json"))
	got, err := c.GetObject(ctx, "auth/user.json")
	require.NoError(t, err)
	require.JSONEq(t, `{"cookies":[]}`, string(got))

	require.NoError(t, c.PutObject(ctx, "auth/user.json", []byte(`{"cookies":[{"name":"a"}]}`), "application/json"))
	got, err = c.GetObject(ctx, "auth/user.json")
	require.NoError(t, err)
	require.JSONEq(t, `{"cookies":[{"name":"a"}]}`, string(got))
}

func TestFakeS3_SharesOneEndpoint(t *testing.T) {
	t.Parallel()
	fake := NewFakeS3(t, "bucket-a", "bucket-b")
	ctx := context.Background()

	require.NoError(t, fake.Client("bucket-a").PutObject(ctx, "k", []byte("in a"), "text/plain"))
	_, err := fake.Client("bucket-b").GetObject(ctx, "k")
	require.True(t, errors.Is(err, ErrObjectNotFound), "got %v", err)
	require.Equal(t, fake.Endpoint(), fake.Config("bucket-b").Endpoint)
}

func TestClient_ObjectURI(t *testing.T) {
	t.Parallel()
	c := NewFromS3Client(nil, "reports")
	require.Equal(t, "s3://reports/runs/1/index.html", c.ObjectURI("/runs/1/index.html"))
}

func TestNew_RequiresBucket(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	require.Error(t, err)
}
