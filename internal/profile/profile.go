// Package profile builds and caches the summarized user profile used for
// drafting. A profile is rebuilt only when its sources change or it has been
// invalidated.
package profile

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/coldreach/coldreach/internal/model"
)

// Repository persists profiles. store.Store satisfies it.
type Repository interface {
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	UpsertProfile(ctx context.Context, p *model.UserProfile) error
	InvalidateProfile(ctx context.Context, userID string) error
	DeleteProfile(ctx context.Context, userID string) error
}

// SourceSummarizer condenses raw profile sources into a summary.
type SourceSummarizer interface {
	Summarize(ctx context.Context, sources model.ProfileSources) (string, error)
}

// Store is the build-or-fetch cache of user profiles.
type Store struct {
	repo       Repository
	summarizer SourceSummarizer
	locks      *keyedMutex
	group      singleflight.Group
	now        func() time.Time
}

// NewStore creates a profile Store.
func NewStore(repo Repository, summarizer SourceSummarizer) *Store {
	return &Store{
		repo:       repo,
		summarizer: summarizer,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// GetOrBuild returns the cached profile when its content hash matches the
// given sources and it has not been invalidated. Otherwise it summarizes the
// sources and persists the result. Builds for the same user never overlap;
// concurrent callers with the same sources share one build.
func (s *Store) GetOrBuild(ctx context.Context, userID string, sources model.ProfileSources) (*model.UserProfile, error) {
	if userID == "" {
		return nil, eris.New("profile: user id is required")
	}
	hash := sources.ContentHash()

	cached, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, eris.Wrap(err, "profile: load")
	}
	if fresh(cached, hash) {
		return cached, nil
	}

	// The build is shared, so it must not die with whichever caller started
	// it. Each caller still stops waiting when its own ctx ends.
	bctx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(userID+":"+hash, func() (any, error) {
		unlock := s.locks.Lock(userID)
		defer unlock()

		// Another build may have finished while we waited.
		cached, err := s.repo.GetProfile(bctx, userID)
		if err != nil {
			return nil, eris.Wrap(err, "profile: reload")
		}
		if fresh(cached, hash) {
			return cached, nil
		}
		return s.build(bctx, userID, hash, sources)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, eris.Wrapf(ctx.Err(), "profile: wait for build of %s", userID)
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	p := res.Val.(*model.UserProfile)
	if res.Shared {
		cp := *p
		p = &cp
	}
	return p, nil
}

func (s *Store) build(ctx context.Context, userID, hash string, sources model.ProfileSources) (*model.UserProfile, error) {
	start := s.now()
	summary, err := s.summarizer.Summarize(ctx, sources)
	if err != nil {
		return nil, model.Classify(model.ErrProfileBuild, eris.Wrapf(err, "profile: summarize %s", userID))
	}

	p := &model.UserProfile{
		UserID:      userID,
		Summary:     summary,
		Provenance:  sources.Provenance(),
		ContentHash: hash,
		BuiltAt:     s.now().UTC(),
	}
	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		return nil, eris.Wrap(err, "profile: persist")
	}

	zap.L().Info("profile built",
		zap.String("user_id", userID),
		zap.Int("sources", len(p.Provenance)),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return p, nil
}

// Invalidate forces the next GetOrBuild for userID to rebuild.
func (s *Store) Invalidate(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()
	return eris.Wrap(s.repo.InvalidateProfile(ctx, userID), "profile: invalidate")
}

// Delete removes the stored profile for userID.
func (s *Store) Delete(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()
	if err := s.repo.DeleteProfile(ctx, userID); err != nil {
		return eris.Wrap(err, "profile: delete")
	}
	zap.L().Info("profile deleted", zap.String("user_id", userID))
	return nil
}

// Get returns the stored profile without building. Nil when absent.
func (s *Store) Get(ctx context.Context, userID string) (*model.UserProfile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	return p, eris.Wrap(err, "profile: get")
}

func fresh(p *model.UserProfile, hash string) bool {
	return p != nil && !p.Invalidated && p.ContentHash == hash
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
