package detector

import (
	"math"

	"turnstiled/internal/core/rulepack"
)

// Confidence combines fired rule tiers as independent evidence (noisy-OR):
// floor(100 * (1 - prod(1 - w))). Adding a rule never lowers the score and the
// result stays within [0, 100]
func Confidence(tiers []rulepack.Tier) int {
	if len(tiers) == 0 {
		return 0
	}
	miss := 1.0
	for _, t := range tiers {
		miss *= 1 - t.Weight()
	}
	// epsilon absorbs binary rounding of the tier weights (0.85 must give 85)
	c := int(math.Floor(100*(1-miss) + 1e-9))
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}
