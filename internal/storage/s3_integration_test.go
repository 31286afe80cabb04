//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/testutil"
)

func newTestClient(ctx context.Context, t *testing.T, maxBytes int64) *S3Client {
	t.Helper()
	rc := testutil.NewRustFSContainer(ctx, t)
	t.Cleanup(func() { _ = rc.Terminate(context.Background()) })

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        rc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSKey,
		SecretAccessKey: testutil.RustFSSecret,
		Bucket:          "counsel-documents",
		UsePathStyle:    true,
		MaxObjectBytes:  maxBytes,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))
	return client
}

func TestS3Client_RustFS(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(ctx, t, 0)

	require.NoError(t, client.EnsureBucket(ctx), "second call finds the bucket")
	require.NoError(t, client.PutObject(ctx, "org-1/doc.txt", "text/plain", []byte("Kündigungsschreiben")))

	data, err := client.GetObject(ctx, "org-1/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "Kündigungsschreiben", string(data))

	_, err = client.GetObject(ctx, "org-1/missing.txt")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestS3Client_GetObjectTooLarge(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(ctx, t, 4)

	require.NoError(t, client.PutObject(ctx, "big.bin", "application/octet-stream", []byte("0123456789")))
	_, err := client.GetObject(ctx, "big.bin")
	assert.Error(t, err)
}
