package s3

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosswalk/internal/blob/core"
)

func TestMockStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	st := NewMockForTests()
	assert.Equal(t, core.DriverS3, st.Driver())

	info, err := st.Put(ctx, "roster/2024-01-01/20240101T000000Z.xlsx", strings.NewReader("roster"),
		core.PutOptions{ContentType: "application/vnd.ms-excel", Metadata: map[string]string{"snapshot": "2024-01-01"}})
	require.NoError(t, err)
	assert.EqualValues(t, 6, info.Size)
	assert.Equal(t, "application/vnd.ms-excel", info.ContentType)
	assert.Equal(t, "2024-01-01", info.Metadata["snapshot"])

	_, err = st.Put(ctx, "roster/2024-01-01/20240101T000000Z.xlsx", strings.NewReader("x"), core.PutOptions{})
	assert.ErrorIs(t, err, core.ErrExists)

	_, rc, err := st.Get(ctx, "roster/2024-01-01/20240101T000000Z.xlsx")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	assert.Equal(t, "roster", string(body))

	_, _, err = st.Get(ctx, "roster/missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	ok, err := st.Delete(ctx, "roster/2024-01-01/20240101T000000Z.xlsx")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.Delete(ctx, "roster/2024-01-01/20240101T000000Z.xlsx")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListFollowsContinuation(t *testing.T) {
	ctx := context.Background()
	bucket := newMockBucket(2)
	st := newStore(newMockClient(bucket), "paged")
	for _, k := range []string{"mutations/c", "mutations/a", "mutations/b", "exports/x"} {
		_, err := st.Put(ctx, k, strings.NewReader(k), core.PutOptions{})
		require.NoError(t, err)
	}
	infos, err := st.List(ctx, "mutations/")
	require.NoError(t, err)
	keys := make([]string, 0, len(infos))
	for _, inf := range infos {
		keys = append(keys, inf.Key)
	}
	assert.Equal(t, []string{"mutations/a", "mutations/b", "mutations/c"}, keys)
}

func TestPresignURL(t *testing.T) {
	ctx := context.Background()
	st := NewMockForTests()
	u, err := st.PresignURL(ctx, "exports/id/crosswalk.csv", core.SignedURLOptions{Expiry: time.Minute})
	require.NoError(t, err)
	assert.Contains(t, u, "exports/id/crosswalk.csv")
	assert.Contains(t, u, "X-Amz-Expires=60")

	_, err = st.PresignURL(ctx, "x", core.SignedURLOptions{Method: "PUT"})
	assert.ErrorIs(t, err, core.ErrUnsupported)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)

	t.Setenv(EnvBucket, "")
	_, err = OpenFromEnv(context.Background())
	assert.ErrorContains(t, err, EnvBucket)
}

func TestOpenFromEnv(t *testing.T) {
	t.Setenv(EnvBucket, "crosswalk")
	t.Setenv(EnvEndpoint, "http://localhost:9000")
	t.Setenv(EnvPathStyle, "TRUE")
	t.Setenv(EnvAccessKey, "minio")
	t.Setenv(EnvSecretKey, "minio123")
	st, err := OpenFromEnv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "crosswalk", st.bucket)
	assert.Equal(t, DefaultRegion, st.client.Options().Region)
	assert.True(t, st.client.Options().UsePathStyle)
}

func TestDecodeChunked(t *testing.T) {
	body, ok := decodeChunked([]byte("5;chunk-signature=abc\r\nhello\r\n0\r\n\r\n"))
	require.True(t, ok)
	assert.Equal(t, "hello", string(body))
	_, ok = decodeChunked([]byte("plain"))
	assert.False(t, ok)
}
