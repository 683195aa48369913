package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"singbirds-quiz-service/internal/domain"
)

// PoolLoader fetches a hotspot's species pool from its source of truth
// (catalog API or the Postgres mirror).
type PoolLoader interface {
	ListSpecies(ctx context.Context, hotspotID string) ([]domain.Species, error)
}

// PoolRepository caches species pools with TTL to avoid repeated catalog hits.
// Failures and empty pools are never cached.
type PoolRepository struct {
	loader PoolLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedPool
}

type cachedPool struct {
	species   []domain.Species
	expiresAt time.Time
}

func NewPoolRepository(loader PoolLoader, ttl time.Duration) *PoolRepository {
	return &PoolRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPool),
	}
}

func (r *PoolRepository) ListSpecies(ctx context.Context, hotspotID string) ([]domain.Species, error) {
	if species, ok := r.lookup(hotspotID); ok {
		return species, nil
	}

	result, err, _ := r.sf.Do(hotspotID, func() (interface{}, error) {
		if species, ok := r.lookup(hotspotID); ok {
			return species, nil
		}

		species, err := r.loader.ListSpecies(ctx, hotspotID)
		if err != nil {
			return nil, err
		}
		if len(species) == 0 {
			return nil, domain.ErrEmptyPool
		}

		r.mu.Lock()
		r.cache[hotspotID] = cachedPool{
			species:   species,
			expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return species, nil
	})
	if err != nil {
		return nil, err
	}
	return clonePool(result.([]domain.Species)), nil
}

// Invalidate drops a cached pool, e.g. after the mirror was refreshed.
func (r *PoolRepository) Invalidate(hotspotID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, hotspotID)
}

func (r *PoolRepository) lookup(hotspotID string) ([]domain.Species, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[hotspotID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return nil, false
	}
	return clonePool(entry.species), true
}

func (r *PoolRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func clonePool(species []domain.Species) []domain.Species {
	out := make([]domain.Species, len(species))
	copy(out, species)
	return out
}

// StaticPoolLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticPoolLoader struct {
	pools map[string][]domain.Species
}

func NewStaticPoolLoader(pools map[string][]domain.Species) *StaticPoolLoader {
	return &StaticPoolLoader{pools: pools}
}

func (l *StaticPoolLoader) ListSpecies(_ context.Context, hotspotID string) ([]domain.Species, error) {
	species, ok := l.pools[hotspotID]
	if !ok || len(species) == 0 {
		return nil, domain.ErrEmptyPool
	}
	return clonePool(species), nil
}
