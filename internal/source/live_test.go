package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosswalk/internal/blob"
	"crosswalk/internal/infra/persistence/memory"
	"crosswalk/pkg/domain"
)

type captureLogger struct{ warnings []string }

func (c *captureLogger) Info(string, ...any) {}
func (c *captureLogger) Warn(msg string, _ ...any) { c.warnings = append(c.warnings, msg) }

func TestLiveSourceArchivesDownloads(t *testing.T) {
	ctx := context.Background()
	srv := newBFSServer(t, mutationSheet(t), rosterSheet(t))
	archive := NewArchive(blob.NewMemory())
	live := NewLiveSource(NewBFSClient(WithBaseURL(srv.URL)), archive, nil)

	last, err := live.LastUpdated(ctx)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 1), last)

	recs, err := live.Mutations(ctx, MutationQuery{Since: day(1970, 1, 1), To: day(2000, 1, 1)})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	entries, err := live.Roster(ctx, day(2000, 1, 1), nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	muts, err := archive.Store().List(ctx, "mutations/")
	require.NoError(t, err)
	require.Len(t, muts, 1)
	assert.Equal(t, "1970-01-01", muts[0].Metadata["since"])
	rosters, err := archive.Store().List(ctx, "roster/2000-01-01/")
	require.NoError(t, err)
	assert.Len(t, rosters, 1)
}

func TestLiveSourceCachesLastUpdated(t *testing.T) {
	srv := newBFSServer(t, nil, nil)
	live := NewLiveSource(NewBFSClient(WithBaseURL(srv.URL)), nil, nil)
	now := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	live.now = func() time.Time { return now }
	_, err := live.LastUpdated(context.Background())
	require.NoError(t, err)

	srv.fail.Store(true)
	got, err := live.LastUpdated(context.Background())
	require.NoError(t, err, "served from cache")
	assert.Equal(t, day(2024, 3, 1), got)

	now = now.Add(2 * time.Hour)
	_, err = live.LastUpdated(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestFallbackSourceUsesArchive(t *testing.T) {
	ctx := context.Background()
	srv := newBFSServer(t, mutationSheet(t), rosterSheet(t))
	archive := NewArchive(blob.NewMemory())
	live := NewLiveSource(NewBFSClient(WithBaseURL(srv.URL)), archive, nil)
	_, err := live.Mutations(ctx, MutationQuery{Since: day(1970, 1, 1), To: day(2000, 1, 1)})
	require.NoError(t, err)
	_, err = live.Roster(ctx, day(2000, 1, 1), nil)
	require.NoError(t, err)

	srv.fail.Store(true)
	logger := &captureLogger{}
	offline := NewFallbackSource(NewLiveSource(NewBFSClient(WithBaseURL(srv.URL)), nil, nil), archive, logger)
	assert.Equal(t, "bfs+archive", offline.Name())

	last, err := offline.LastUpdated(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	recs, err := offline.Mutations(ctx, MutationQuery{Since: day(1800, 1, 1), To: day(2024, 1, 1)})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	entries, err := offline.Roster(ctx, day(2000, 1, 1), nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = offline.Roster(ctx, day(2010, 1, 1), nil)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
	assert.Len(t, logger.warnings, 3)
}

func TestFallbackSourceWithoutArchiveReturnsPrimaryError(t *testing.T) {
	ctx := context.Background()
	srv := newBFSServer(t, mutationSheet(t), rosterSheet(t))
	srv.fail.Store(true)
	offline := NewFallbackSource(NewLiveSource(NewBFSClient(WithBaseURL(srv.URL)), nil, nil), nil, nil)

	_, err := offline.Mutations(ctx, MutationQuery{Since: day(1970, 1, 1), To: day(2000, 1, 1)})
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
	_, err = offline.Roster(ctx, day(2000, 1, 1), nil)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)

	srv.fail.Store(false)
	recs, err := offline.Mutations(ctx, MutationQuery{Since: day(1970, 1, 1), To: day(2000, 1, 1)})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestArchiveLatestPicksNewest(t *testing.T) {
	ctx := context.Background()
	archive := NewArchive(blob.NewMemory())
	_, _, err := archive.LatestMutations(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	stamps := []time.Time{time.Date(2024, 1, 1, 0, 0, 0, 1, time.UTC), time.Date(2024, 1, 1, 0, 0, 0, 2, time.UTC)}
	for i, ts := range stamps {
		archive.now = func() time.Time { return ts }
		_, err := archive.SaveMutations(ctx, MutationQuery{}, []byte{byte('a' + i)})
		require.NoError(t, err)
	}
	data, info, err := archive.LatestMutations(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
	assert.Equal(t, "mutations/20240101T000000.000000002Z.xlsx", info.Key)

	_, err = archive.SaveMutations(ctx, MutationQuery{}, []byte("dup"))
	assert.ErrorIs(t, err, blob.ErrExists)
}

func TestStoreSource(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	logger := &captureLogger{}
	src := NewStoreSource(store, logger)

	_, err := src.Mutations(ctx, MutationQuery{})
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = src.Roster(ctx, day(2000, 1, 1), nil)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, store.ReplaceMutations(ctx, []domain.MutationRecord{{ChangeID: 1, Old: illnau, New: effretikon, ChangeDate: day(1974, 1, 1)}}))
	require.NoError(t, store.ReplaceRoster(ctx, day(2024, 1, 1), []domain.RosterEntry{{HistoryNumber: 1, Identity: effretikon}}))

	last, err := src.LastUpdated(ctx)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 1, 1), last)
	recs, err := src.Mutations(ctx, MutationQuery{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	entries, err := src.Roster(ctx, day(2000, 1, 1), nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, []string{"cached roster taken at another date"}, logger.warnings)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	mpath := filepath.Join(dir, "mutations.xlsx")
	rpath := filepath.Join(dir, "roster.xlsx")
	require.NoError(t, os.WriteFile(mpath, mutationSheet(t), 0o600))
	require.NoError(t, os.WriteFile(rpath, rosterSheet(t), 0o600))

	src := FileSource{MutationsPath: mpath, RosterPath: rpath}
	last, err := src.LastUpdated(context.Background())
	require.NoError(t, err)
	assert.True(t, last.IsZero())
	recs, err := src.Mutations(context.Background(), MutationQuery{})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	entries, err := src.Roster(context.Background(), time.Time{}, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = FileSource{MutationsPath: mpath}.Roster(context.Background(), time.Time{}, nil)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = FileSource{MutationsPath: filepath.Join(dir, "missing.xlsx")}.Mutations(context.Background(), MutationQuery{})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
