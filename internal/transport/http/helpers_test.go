package http

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"singbirds-quiz-service/internal/app"
	"singbirds-quiz-service/internal/domain"
	"singbirds-quiz-service/internal/infra/memory"
)

type stubFetcher struct{}

func (stubFetcher) FetchDetail(_ context.Context, speciesID string) (domain.SpeciesDetail, error) {
	return domain.SpeciesDetail{
		SpeciesID:      speciesID,
		RecordingURL:   "https://media.test/rec/" + speciesID,
		SpectrogramURL: "https://media.test/spec/" + speciesID + ".png",
	}, nil
}

type stubHotspots struct {
	hotspots []domain.Hotspot
	err      error
}

func (s stubHotspots) ListHotspots(context.Context) ([]domain.Hotspot, error) {
	return s.hotspots, s.err
}

func samplePools() map[string][]domain.Species {
	species := make([]domain.Species, 8)
	for i := range species {
		species[i] = domain.Species{ID: fmt.Sprintf("b%d", i+1), CommonName: fmt.Sprintf("Bird %d", i+1)}
	}
	return map[string][]domain.Species{"L1": species}
}

func newTestService() *app.QuizService {
	store := memory.NewSessionStore()
	pools := memory.NewPoolRepository(memory.NewStaticPoolLoader(samplePools()), 0)
	return app.NewQuizService(store, pools, stubFetcher{})
}

// correctAnswer maps the open question's recording back to its species name.
func correctAnswer(t *testing.T, snap domain.Snapshot) string {
	t.Helper()
	if snap.Question == nil {
		t.Fatalf("expected an open question, got view %q", snap.View)
	}
	id := snap.Question.RecordingURL[strings.LastIndex(snap.Question.RecordingURL, "/")+1:]
	for _, s := range samplePools()["L1"] {
		if s.ID == id {
			return s.CommonName
		}
	}
	t.Fatalf("unknown species %s", id)
	return ""
}

var errUpstream = fmt.Errorf("hotspots: %w", domain.ErrNetwork)
