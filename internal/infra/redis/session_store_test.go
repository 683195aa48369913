package redis

import (
	"math/rand/v2"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"singbirds-quiz-service/internal/app"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)

	store.Put(app.NewSession("s-1", "L1", 5, rand.New(rand.NewPCG(1, 2)), time.Now))
	if !mr.Exists("singbirds:session:s-1") {
		t.Fatalf("expected redis key to be set")
	}
	if got, _ := mr.Get("singbirds:session:s-1"); got != "L1" {
		t.Fatalf("expected marker to hold the hotspot, got %q", got)
	}

	store.Delete("s-1")
	if mr.Exists("singbirds:session:s-1") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok := store.Get("s-1"); ok {
		t.Fatalf("expected session removed")
	}
}

func TestSessionStoreGetRefreshesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewSessionStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	store.Put(app.NewSession("s-1", "L1", 5, rand.New(rand.NewPCG(1, 2)), time.Now))

	mr.FastForward(50 * time.Second)
	if _, ok := store.Get("s-1"); !ok {
		t.Fatalf("expected session present")
	}
	if ttl := mr.TTL("singbirds:session:s-1"); ttl != time.Minute {
		t.Fatalf("expected ttl refreshed to 1m, got %v", ttl)
	}
}

func TestSessionStoreExpireClearsMarkers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewSessionStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewPCG(1, 2))
	store.Put(app.NewSession("old", "L1", 5, rng, func() time.Time { return base }))
	store.Put(app.NewSession("new", "L1", 5, rng, func() time.Time { return base.Add(time.Hour) }))

	expired := store.Expire(base.Add(time.Minute))
	if len(expired) != 1 || expired[0].ID() != "old" {
		t.Fatalf("expected only old session expired, got %d", len(expired))
	}
	if mr.Exists("singbirds:session:old") {
		t.Fatalf("expected marker for expired session removed")
	}
	if !mr.Exists("singbirds:session:new") {
		t.Fatalf("expected marker for live session kept")
	}
}
