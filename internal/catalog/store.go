package catalog

import (
	"context"
	"sync"
	"time"

	appLog "regcal/internal/log"
	"regcal/internal/model"
)

// Source produces raw feed payloads. *Fetcher implements it.
type Source interface {
	Fetch(ctx context.Context) (FetchResult, error)
}

// Snapshot is one complete, immutable catalog generation.
type Snapshot struct {
	Index     *Index
	Sections  []model.CourseSection
	Raw       []byte
	FetchedAt time.Time
	FromCache bool
}

// Store holds the process-wide catalog snapshot and refreshes it when it
// is older than the TTL. A failed refresh never installs a partial or
// empty catalog.
type Store struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu   sync.RWMutex
	snap *Snapshot

	// refreshMu serialises fetches so concurrent callers share one.
	refreshMu sync.Mutex
}

type StoreOption func(*Store)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store. ttl <= 0 means a snapshot never expires on its
// own and is only replaced by Refresh.
func NewStore(src Source, ttl time.Duration, opts ...StoreOption) *Store {
	s := &Store{src: src, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot returns the current snapshot, fetching a new one if none is
// loaded or the loaded one has expired.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := s.fresh(); snap != nil {
		return snap, nil
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if snap := s.fresh(); snap != nil {
		return snap, nil
	}
	return s.refreshLocked(ctx)
}

// Index is a shorthand for Snapshot(ctx).Index.
func (s *Store) Index(ctx context.Context) (*Index, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Index, nil
}

// Refresh unconditionally fetches a new snapshot.
func (s *Store) Refresh(ctx context.Context) (*Snapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Store) fresh() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil
	}
	if s.ttl > 0 && s.now().Sub(s.snap.FetchedAt) >= s.ttl {
		return nil
	}
	return s.snap
}

func (s *Store) refreshLocked(ctx context.Context) (*Snapshot, error) {
	res, err := s.src.Fetch(ctx)
	if err != nil {
		appLog.Error("catalog refresh failed", err)
		return nil, err
	}

	sections, err := Decode(res.Body)
	if err != nil {
		appLog.Error("catalog decode failed", err, "bytes", len(res.Body))
		return nil, err
	}

	idx := NewIndex(sections)
	snap := &Snapshot{
		Index:     idx,
		Sections:  sections,
		Raw:       res.Body,
		FetchedAt: s.now(),
		FromCache: res.FromCache,
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	if idx.Duplicates() > 0 {
		appLog.Warn("catalog contains duplicate section keys; later records win", "duplicates", idx.Duplicates())
	}
	appLog.Info("catalog refreshed", "records", idx.Records(), "keys", idx.Len(), "from_cache", res.FromCache)
	return snap, nil
}
