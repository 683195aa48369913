package redis

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"singbirds-quiz-service/internal/domain"
	"singbirds-quiz-service/internal/infra/memory"
)

func TestPoolRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		PoolLoader: memory.NewStaticPoolLoader(map[string][]domain.Species{
			"L1": samplePool(),
		}),
	}
	repo := NewPoolRepository(client, loader, time.Minute)

	species, err := repo.ListSpecies(context.Background(), "L1")
	if err != nil {
		t.Fatalf("list species: %v", err)
	}
	if len(species) != 3 || loader.count() != 1 {
		t.Fatalf("expected 3 species from one loader call, got %d species and %d calls", len(species), loader.count())
	}
	if !mr.Exists("singbirds:hotspot:L1:species") {
		t.Fatalf("expected pool hash to be written")
	}
	if ttl := mr.TTL("singbirds:hotspot:L1:species"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with jitter, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.ListSpecies(context.Background(), "L1")
	if err != nil {
		t.Fatalf("list species 2: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.count())
	}
	if !slices.Equal(cached, samplePool()) {
		t.Fatalf("cached pool lost catalog order: %+v", cached)
	}

	// A fresh repository reads the same hash and must keep the order too.
	other := NewPoolRepository(client, loader, time.Minute)
	again, err := other.ListSpecies(context.Background(), "L1")
	if err != nil {
		t.Fatalf("list species 3: %v", err)
	}
	if loader.count() != 1 || !slices.Equal(again, samplePool()) {
		t.Fatalf("expected ordered cache hit, got %+v after %d loader calls", again, loader.count())
	}
}

func TestPoolRepositoryReloadsUndecodableEntries(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	mr.HSet("singbirds:hotspot:L1:species", "amerob", "American Robin")
	loader := &countingLoader{
		PoolLoader: memory.NewStaticPoolLoader(map[string][]domain.Species{"L1": samplePool()}),
	}
	repo := NewPoolRepository(newClient(mr), loader, time.Minute)

	species, err := repo.ListSpecies(context.Background(), "L1")
	if err != nil {
		t.Fatalf("list species: %v", err)
	}
	if loader.count() != 1 || !slices.Equal(species, samplePool()) {
		t.Fatalf("expected reload in catalog order, got %+v after %d loader calls", species, loader.count())
	}
	if got := mr.HGet("singbirds:hotspot:L1:species", "amerob"); got != `{"pos":1,"name":"American Robin"}` {
		t.Fatalf("expected rewritten entry, got %q", got)
	}
}

func TestPoolRepositorySkipsCachingEmptyPools(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{PoolLoader: memory.NewStaticPoolLoader(nil)}
	repo := NewPoolRepository(newClient(mr), loader, time.Minute)

	if _, err := repo.ListSpecies(context.Background(), "L0"); !errors.Is(err, domain.ErrEmptyPool) {
		t.Fatalf("expected empty pool, got %v", err)
	}
	if mr.Exists("singbirds:hotspot:L0:species") {
		t.Fatalf("empty pool must not be cached")
	}
}

func TestPoolRepositoryServesLoaderWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	repo := NewPoolRepository(client, memory.NewStaticPoolLoader(map[string][]domain.Species{"L1": samplePool()}), time.Minute)
	species, err := repo.ListSpecies(context.Background(), "L1")
	if err != nil {
		t.Fatalf("expected loader fallback, got %v", err)
	}
	if len(species) != 3 {
		t.Fatalf("expected 3 species, got %d", len(species))
	}
}

func TestPoolRepositoryInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewPoolRepository(newClient(mr), memory.NewStaticPoolLoader(map[string][]domain.Species{"L1": samplePool()}), time.Minute)
	_, _ = repo.ListSpecies(context.Background(), "L1")

	if err := repo.Invalidate(context.Background(), "L1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("singbirds:hotspot:L1:species") {
		t.Fatalf("expected pool hash removed")
	}
}

type countingLoader struct {
	PoolLoader
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) ListSpecies(ctx context.Context, hotspotID string) ([]domain.Species, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.PoolLoader.ListSpecies(ctx, hotspotID)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func samplePool() []domain.Species {
	return []domain.Species{
		{ID: "norcar", CommonName: "Northern Cardinal"},
		{ID: "amerob", CommonName: "American Robin"},
		{ID: "blujay", CommonName: "Blue Jay"},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
