package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()

	t.Setenv(EnvDriver, "memory")
	st, err := Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, st.Driver())

	t.Setenv(EnvDriver, "")
	t.Setenv(EnvFSRoot, t.TempDir())
	st, err = Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, st.Driver())

	t.Setenv(EnvDriver, "s3")
	t.Setenv("CROSSWALK_BLOB_S3_BUCKET", "")
	_, err = Open(ctx)
	assert.Error(t, err)

	t.Setenv(EnvDriver, "tape")
	_, err = Open(ctx)
	assert.ErrorContains(t, err, "unknown blob driver")
}

func TestDriversShareContract(t *testing.T) {
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	stores := map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
		"s3":     NewMockS3ForTests(),
	}
	for name, st := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := st.Put(ctx, "mutations/20240102T000000Z.xlsx", bytes.NewReader([]byte("b")), PutOptions{ContentType: "application/octet-stream"})
			require.NoError(t, err)
			_, err = st.Put(ctx, "mutations/20240101T000000Z.xlsx", bytes.NewReader([]byte("a")), PutOptions{})
			require.NoError(t, err)
			_, err = st.Put(ctx, "mutations/20240101T000000Z.xlsx", bytes.NewReader([]byte("again")), PutOptions{})
			assert.True(t, errors.Is(err, ErrExists), "put over existing key: %v", err)

			infos, err := st.List(ctx, "mutations/")
			require.NoError(t, err)
			require.Len(t, infos, 2)
			assert.Equal(t, "mutations/20240101T000000Z.xlsx", infos[0].Key)

			latest, ok := Latest(infos)
			require.True(t, ok)
			_, rc, err := st.Get(ctx, latest.Key)
			require.NoError(t, err)
			body, _ := io.ReadAll(rc)
			require.NoError(t, rc.Close())
			assert.Equal(t, "b", string(body))

			_, err = st.Head(ctx, "mutations/missing.xlsx")
			assert.True(t, errors.Is(err, ErrNotFound), "head missing: %v", err)
		})
	}
}
