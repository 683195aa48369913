package app

import (
	"math"

	"singbirds-quiz-service/internal/domain"
)

// Achievement tiers, highest first.
const (
	TierBirdGuru          = "Bird Guru"
	TierBirdMaster        = "Bird Master"
	TierAdvancedBirder    = "Advanced Birder"
	TierExpertBirder      = "Expert Birder"
	TierSkilledObserver   = "Skilled Observer"
	TierKeenBirdwatcher   = "Keen Birdwatcher"
	TierBuddingBirder     = "Budding Birder"
	TierAmateurSpotter    = "Amateur Spotter"
	TierCuriousNovice     = "Curious Novice"
	TierNoviceBirdwatcher = "Novice Birdwatcher"
)

var tierThresholds = []struct {
	min  float64
	tier string
}{
	{95, TierBirdGuru},
	{85, TierBirdMaster},
	{75, TierAdvancedBirder},
	{65, TierExpertBirder},
	{55, TierSkilledObserver},
	{45, TierKeenBirdwatcher},
	{35, TierBuddingBirder},
	{25, TierAmateurSpotter},
	{15, TierCuriousNovice},
}

// Summarize maps a final tally to an accuracy percentage (one decimal) and a
// tier. With nothing answered the accuracy is nil and the tier is the lowest.
func Summarize(score, totalAnswered int) domain.Summary {
	summary := domain.Summary{
		Score:         score,
		TotalAnswered: totalAnswered,
		Tier:          TierNoviceBirdwatcher,
	}
	if totalAnswered <= 0 {
		return summary
	}

	percent := 100 * float64(score) / float64(totalAnswered)
	accuracy := math.Round(percent*10) / 10
	summary.AccuracyPercent = &accuracy
	summary.Tier = tierFor(percent)
	return summary
}

func tierFor(percent float64) string {
	for _, threshold := range tierThresholds {
		if percent >= threshold.min {
			return threshold.tier
		}
	}
	return TierNoviceBirdwatcher
}
