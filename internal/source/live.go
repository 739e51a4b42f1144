package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crosswalk/pkg/domain"
)

// lastUpdatedTTL bounds how long LiveSource trusts a fetched update date.
const lastUpdatedTTL = time.Hour

// LiveSource downloads from the BFS web service and archives every download
// when an Archive is configured.
type LiveSource struct {
	client  *BFSClient
	archive *Archive
	logger  Logger
	now     func() time.Time

	mu          sync.Mutex
	lastUpdated time.Time
	checkedAt   time.Time
}

// NewLiveSource wraps client. archive and logger may be nil.
func NewLiveSource(client *BFSClient, archive *Archive, logger Logger) *LiveSource {
	return &LiveSource{client: client, archive: archive, logger: loggerOrNoop(logger), now: time.Now}
}

// Name implements Source.
func (s *LiveSource) Name() string { return "bfs" }

// LastUpdated implements Source; the value is cached for an hour.
func (s *LiveSource) LastUpdated(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkedAt.IsZero() && s.now().Sub(s.checkedAt) < lastUpdatedTTL {
		return s.lastUpdated, nil
	}
	t, err := s.client.LastUpdated(ctx)
	if err != nil {
		return time.Time{}, err
	}
	s.lastUpdated, s.checkedAt = t, s.now()
	return t, nil
}

// Mutations implements Source.
func (s *LiveSource) Mutations(ctx context.Context, q MutationQuery) ([]domain.MutationRecord, error) {
	lastUpdated, err := s.LastUpdated(ctx)
	if err != nil {
		return nil, err
	}
	data, err := s.client.DownloadMutations(ctx, q, lastUpdated)
	if err != nil {
		return nil, err
	}
	recs, err := DecodeMutations(data)
	if err != nil {
		return nil, err
	}
	if s.archive != nil {
		if info, err := s.archive.SaveMutations(ctx, q, data); err != nil {
			s.logger.Warn("archive mutations failed", "error", err)
		} else {
			s.logger.Info("archived mutations", "key", info.Key, "records", len(recs))
		}
	}
	return recs, nil
}

// Roster implements Source.
func (s *LiveSource) Roster(ctx context.Context, at time.Time, cantons []string) ([]domain.RosterEntry, error) {
	data, err := s.client.DownloadRoster(ctx, at, cantons)
	if err != nil {
		return nil, err
	}
	entries, err := DecodeRoster(data)
	if err != nil {
		return nil, err
	}
	if s.archive != nil {
		if info, err := s.archive.SaveRoster(ctx, at, data); err != nil {
			s.logger.Warn("archive roster failed", "error", err)
		} else {
			s.logger.Info("archived roster", "key", info.Key, "entries", len(entries))
		}
	}
	return entries, nil
}

// FallbackSource serves from Primary and falls back to the newest archived
// download when Primary fails. The archived mutation sheet may cover a
// different window; the resolver filters it to the requested scope.
type FallbackSource struct {
	primary Source
	archive *Archive
	logger  Logger
}

// NewFallbackSource wraps primary with archive fallback. A nil archive
// passes primary failures through unchanged.
func NewFallbackSource(primary Source, archive *Archive, logger Logger) *FallbackSource {
	return &FallbackSource{primary: primary, archive: archive, logger: loggerOrNoop(logger)}
}

// Name implements Source.
func (s *FallbackSource) Name() string { return s.primary.Name() + "+archive" }

// LastUpdated implements Source. When the primary cannot be reached the
// update date is unknown and the staleness check is skipped.
func (s *FallbackSource) LastUpdated(ctx context.Context) (time.Time, error) {
	t, err := s.primary.LastUpdated(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return time.Time{}, ctx.Err()
		}
		s.logger.Warn("last update date unavailable", "source", s.primary.Name(), "error", err)
		return time.Time{}, nil
	}
	return t, nil
}

// Mutations implements Source.
func (s *FallbackSource) Mutations(ctx context.Context, q MutationQuery) ([]domain.MutationRecord, error) {
	recs, err := s.primary.Mutations(ctx, q)
	if err == nil || ctx.Err() != nil || s.archive == nil {
		return recs, err
	}
	data, info, aerr := s.archive.LatestMutations(ctx)
	if aerr != nil {
		return nil, joinFallback(err, aerr)
	}
	s.logger.Warn("download failed, using archived mutations", "error", err, "key", info.Key)
	return DecodeMutations(data)
}

// Roster implements Source.
func (s *FallbackSource) Roster(ctx context.Context, at time.Time, cantons []string) ([]domain.RosterEntry, error) {
	entries, err := s.primary.Roster(ctx, at, cantons)
	if err == nil || ctx.Err() != nil || s.archive == nil {
		return entries, err
	}
	data, info, aerr := s.archive.LatestRoster(ctx, at)
	if aerr != nil {
		return nil, joinFallback(err, aerr)
	}
	s.logger.Warn("download failed, using archived roster", "error", err, "key", info.Key)
	return DecodeRoster(data)
}

func joinFallback(primary, archive error) error {
	return fmt.Errorf("%w; archive fallback: %w", primary, archive)
}
