package app_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"singbirds-quiz-service/internal/app"
	"singbirds-quiz-service/internal/domain"
	"singbirds-quiz-service/internal/infra/memory"
)

// speciesPool builds n species with IDs sp01.. and names "Bird 01"..
func speciesPool(n int) []domain.Species {
	pool := make([]domain.Species, n)
	for i := range pool {
		pool[i] = domain.Species{
			ID:         fmt.Sprintf("sp%02d", i+1),
			CommonName: fmt.Sprintf("Bird %02d", i+1),
		}
	}
	return pool
}

// fakeFetcher serves a recording named after the species ID. Species listed
// in failing always error; hook, when set, runs before every call.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	failing map[string]bool
	hook    func(ctx context.Context, speciesID string) error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, failing: map[string]bool{}}
}

func (f *fakeFetcher) FetchDetail(ctx context.Context, speciesID string) (domain.SpeciesDetail, error) {
	f.mu.Lock()
	f.calls[speciesID]++
	failing := f.failing[speciesID]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, speciesID); err != nil {
			return domain.SpeciesDetail{}, err
		}
	}
	if failing {
		return domain.SpeciesDetail{}, fmt.Errorf("species %s: %w", speciesID, domain.ErrMalformedPayload)
	}
	return domain.SpeciesDetail{
		SpeciesID:      speciesID,
		RecordingURL:   "https://media.example/rec/" + speciesID + ".mp3",
		SpectrogramURL: "https://media.example/spec/" + speciesID + ".png",
	}, nil
}

func (f *fakeFetcher) callsFor(speciesID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[speciesID]
}

func (f *fakeFetcher) setHook(hook func(ctx context.Context, speciesID string) error) {
	f.mu.Lock()
	f.hook = hook
	f.mu.Unlock()
}

// speciesIDOf recovers the species behind the open question from its media URL.
func speciesIDOf(t *testing.T, snap domain.Snapshot) string {
	t.Helper()
	if snap.Question == nil {
		t.Fatalf("expected an open question, got view %q state %q", snap.View, snap.State)
	}
	name := snap.Question.RecordingURL[strings.LastIndex(snap.Question.RecordingURL, "/")+1:]
	return strings.TrimSuffix(name, ".mp3")
}

func nameOf(t *testing.T, pool []domain.Species, id string) string {
	t.Helper()
	for _, species := range pool {
		if species.ID == id {
			return species.CommonName
		}
	}
	t.Fatalf("species %s not in pool", id)
	return ""
}

type countingObserver struct {
	mu       sync.Mutex
	started  int
	closed   int
	answers  map[bool]int
	skipped  int
	attempts int
	stale    int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{answers: map[bool]int{}}
}

func (o *countingObserver) SessionStarted(bool) {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *countingObserver) SessionClosed() {
	o.mu.Lock()
	o.closed++
	o.mu.Unlock()
}

func (o *countingObserver) AnswerRecorded(correct bool) {
	o.mu.Lock()
	o.answers[correct]++
	o.mu.Unlock()
}

func (o *countingObserver) QuestionSkipped() {
	o.mu.Lock()
	o.skipped++
	o.mu.Unlock()
}

func (o *countingObserver) DetailAttempt(error) {
	o.mu.Lock()
	o.attempts++
	o.mu.Unlock()
}

func (o *countingObserver) StaleFetch() {
	o.mu.Lock()
	o.stale++
	o.mu.Unlock()
}

func (o *countingObserver) staleCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stale
}

type harness struct {
	service  *app.QuizService
	store    *memory.SessionStore
	fetcher  *fakeFetcher
	observer *countingObserver
	pool     []domain.Species
}

func newHarness(t *testing.T, pool []domain.Species, opts ...app.Option) *harness {
	t.Helper()
	h := &harness{
		store:    memory.NewSessionStore(),
		fetcher:  newFakeFetcher(),
		observer: newCountingObserver(),
		pool:     pool,
	}
	ids := 0
	base := []app.Option{
		app.WithObserver(h.observer),
		app.WithRetryPolicy(app.RetryPolicy{MaxRetries: 2, AttemptTimeout: 5 * time.Second}),
		app.WithRandSource(func() *rand.Rand { return rand.New(rand.NewPCG(7, 11)) }),
		app.WithIDGenerator(func() string { ids++; return fmt.Sprintf("session-%d", ids) }),
	}
	pools := memory.NewStaticPoolLoader(map[string][]domain.Species{"L1": pool})
	h.service = app.NewQuizService(h.store, pools, h.fetcher, append(base, opts...)...)
	return h
}

// checkInvariants asserts the relations every snapshot must satisfy.
func checkInvariants(t *testing.T, snap domain.Snapshot) {
	t.Helper()
	answered := len(snap.CorrectSpecies) + len(snap.IncorrectSpecies)
	if snap.Index-1 != answered {
		t.Fatalf("index %d does not follow answered count %d", snap.Index, answered)
	}
	if snap.Score != len(snap.CorrectSpecies) {
		t.Fatalf("score %d differs from correct list %v", snap.Score, snap.CorrectSpecies)
	}
	if snap.Index < 1 || snap.Index > snap.QuestionCount+1 {
		t.Fatalf("index %d outside 1..%d", snap.Index, snap.QuestionCount+1)
	}
	if snap.State == app.StateFinished.String() && snap.Index != snap.QuestionCount+1 {
		t.Fatalf("finished with index %d and question count %d", snap.Index, snap.QuestionCount)
	}
}
