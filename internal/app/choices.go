package app

import (
	"math/rand/v2"

	"singbirds-quiz-service/internal/domain"
)

// ChoiceCount is the size of a full answer set: the target plus three distractors.
const ChoiceCount = 4

// BuildChoices returns the target plus up to ChoiceCount-1 distractors drawn
// without replacement from pool, in uniformly random order. The target is
// removed from the pool by ID, so distinct entries sharing a common name stay
// eligible as distractors.
func BuildChoices(rng *rand.Rand, target domain.Species, pool []domain.Species) []domain.Species {
	others := make([]domain.Species, 0, len(pool))
	seen := map[string]struct{}{target.ID: {}}
	for _, species := range pool {
		if _, dup := seen[species.ID]; dup {
			continue
		}
		seen[species.ID] = struct{}{}
		others = append(others, species)
	}

	choices := append(sampleSpecies(rng, others, ChoiceCount-1), target)
	rng.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})
	return choices
}

// sampleSpecies picks n entries without replacement using a partial
// Fisher-Yates pass over a copy of items.
func sampleSpecies(rng *rand.Rand, items []domain.Species, n int) []domain.Species {
	out := make([]domain.Species, len(items))
	copy(out, items)
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(out)-i)
		out[i], out[j] = out[j], out[i]
	}
	return out[:n]
}

// uniqueSpecies drops repeated IDs, keeping the first occurrence.
func uniqueSpecies(pool []domain.Species) []domain.Species {
	out := make([]domain.Species, 0, len(pool))
	seen := make(map[string]struct{}, len(pool))
	for _, species := range pool {
		if species.ID == "" {
			continue
		}
		if _, dup := seen[species.ID]; dup {
			continue
		}
		seen[species.ID] = struct{}{}
		out = append(out, species)
	}
	return out
}
