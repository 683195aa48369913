package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"singbirds-quiz-service/internal/domain"
)

// PoolLoader fetches a hotspot's species pool from its source of truth.
type PoolLoader interface {
	ListSpecies(ctx context.Context, hotspotID string) ([]domain.Species, error)
}

// PoolRepository caches species pools in Redis (hash per hotspot) and falls back to a loader on cache miss.
// Pools are stored as: HSET singbirds:hotspot:{hotspotID}:species {speciesID} {"pos":n,"name":commonName}
// so a cache hit returns the pool in the loader's order.
type PoolRepository struct {
	client *redis.Client
	loader PoolLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewPoolRepository(client *redis.Client, loader PoolLoader, ttl time.Duration) *PoolRepository {
	return &PoolRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *PoolRepository) ListSpecies(ctx context.Context, hotspotID string) ([]domain.Species, error) {
	key := r.speciesKey(hotspotID)

	cached, err := r.client.HGetAll(ctx, key).Result()
	if err == nil && len(cached) > 0 {
		if species, ok := buildPoolFromCache(cached); ok {
			return species, nil
		}
	}

	result, err, _ := r.sf.Do(hotspotID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		cached, err := r.client.HGetAll(ctx, key).Result()
		if err == nil && len(cached) > 0 {
			if species, ok := buildPoolFromCache(cached); ok {
				return species, nil
			}
		}

		species, err := r.loader.ListSpecies(ctx, hotspotID)
		if err != nil {
			return nil, err
		}
		if len(species) == 0 {
			return nil, domain.ErrEmptyPool
		}

		fields := make(map[string]interface{}, len(species))
		for i, s := range species {
			entry, err := json.Marshal(cachedSpecies{Pos: i, Name: s.CommonName})
			if err != nil {
				return nil, err
			}
			fields[s.ID] = string(entry)
		}
		pipe := r.client.Pipeline()
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// Caching is best-effort; the loaded pool is still served.
		_, _ = pipe.Exec(ctx)

		return species, nil
	})
	if err != nil {
		return nil, err
	}
	species := result.([]domain.Species)
	out := make([]domain.Species, len(species))
	copy(out, species)
	return out, nil
}

// Invalidate drops a cached pool.
func (r *PoolRepository) Invalidate(ctx context.Context, hotspotID string) error {
	return r.client.Del(ctx, r.speciesKey(hotspotID)).Err()
}

func (r *PoolRepository) speciesKey(hotspotID string) string {
	return "singbirds:hotspot:" + hotspotID + ":species"
}

type cachedSpecies struct {
	Pos  int    `json:"pos"`
	Name string `json:"name"`
}

// buildPoolFromCache restores the stored order; hash field order is
// unspecified. Entries that do not decode report false and are reloaded.
func buildPoolFromCache(fields map[string]string) ([]domain.Species, bool) {
	type positioned struct {
		pos     int
		species domain.Species
	}
	entries := make([]positioned, 0, len(fields))
	for id, raw := range fields {
		var entry cachedSpecies
		if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Name == "" {
			return nil, false
		}
		entries = append(entries, positioned{pos: entry.Pos, species: domain.Species{ID: id, CommonName: entry.Name}})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })

	species := make([]domain.Species, len(entries))
	for i, e := range entries {
		species[i] = e.species
	}
	return species, true
}

func (r *PoolRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
