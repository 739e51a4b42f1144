package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"crosswalk/internal/blob"
	"crosswalk/pkg/domain"
)

const (
	mutationsPrefix = "mutations/"
	rosterPrefix    = "roster/"
	stampLayout     = "20060102T150405.000000000Z"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Archive keeps every successful download in a blob store so that later
// runs can fall back to it when the web service is unavailable.
//
//	mutations/<stamp>.xlsx
//	roster/<snapshot date>/<stamp>.xlsx
type Archive struct {
	store blob.Store
	now   func() time.Time
}

// NewArchive wraps store.
func NewArchive(store blob.Store) *Archive {
	return &Archive{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Store returns the underlying blob store.
func (a *Archive) Store() blob.Store { return a.store }

// SaveMutations stores a mutation download.
func (a *Archive) SaveMutations(ctx context.Context, q MutationQuery, data []byte) (blob.Info, error) {
	key := mutationsPrefix + a.now().Format(stampLayout) + ".xlsx"
	md := map[string]string{
		"since":   domain.FormatISO(q.Since),
		"to":      domain.FormatISO(q.To),
		"cantons": strings.Join(q.Cantons, ","),
	}
	return a.put(ctx, key, data, md)
}

// SaveRoster stores a roster download taken at snapshot.
func (a *Archive) SaveRoster(ctx context.Context, snapshot time.Time, data []byte) (blob.Info, error) {
	key := rosterPrefix + domain.FormatISO(snapshot) + "/" + a.now().Format(stampLayout) + ".xlsx"
	return a.put(ctx, key, data, map[string]string{"snapshot": domain.FormatISO(snapshot)})
}

func (a *Archive) put(ctx context.Context, key string, data []byte, md map[string]string) (blob.Info, error) {
	info, err := a.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: xlsxContentType, Metadata: md})
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive %s: %w", key, err)
	}
	return info, nil
}

// LatestMutations returns the most recent mutation download.
func (a *Archive) LatestMutations(ctx context.Context) ([]byte, blob.Info, error) {
	return a.latest(ctx, mutationsPrefix)
}

// LatestRoster returns the most recent roster download for snapshot.
func (a *Archive) LatestRoster(ctx context.Context, snapshot time.Time) ([]byte, blob.Info, error) {
	return a.latest(ctx, rosterPrefix+domain.FormatISO(snapshot)+"/")
}

func (a *Archive) latest(ctx context.Context, prefix string) ([]byte, blob.Info, error) {
	infos, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, blob.Info{}, fmt.Errorf("list archive %s: %w", prefix, err)
	}
	info, ok := blob.Latest(infos)
	if !ok {
		return nil, blob.Info{}, fmt.Errorf("%w under %s", ErrNoSnapshot, prefix)
	}
	_, rc, err := a.store.Get(ctx, info.Key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, blob.Info{}, fmt.Errorf("%w: %s vanished", ErrNoSnapshot, info.Key)
		}
		return nil, blob.Info{}, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, blob.Info{}, fmt.Errorf("read archive %s: %w", info.Key, err)
	}
	return data, info, nil
}
