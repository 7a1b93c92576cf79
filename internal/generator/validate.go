package generator

import "github.com/verte-zerg/vstask/internal/model"

// Acceptance thresholds on the per-quadrant ratio of the bias color.
const (
	BiasedMinRatio = 0.80
	FairMinRatio   = 0.35
	FairMaxRatio   = 0.65
)

// QuadrantCount tallies active cue colors for one quadrant.
type QuadrantCount struct {
	Quadrant int `json:"quadrant"`
	Red      int `json:"red"`
	Green    int `json:"green"`
}

// Total returns the number of observations.
func (c QuadrantCount) Total() int {
	return c.Red + c.Green
}

// RedRatio returns the share of bias-colored observations; 0 without observations.
func (c QuadrantCount) RedRatio() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return float64(c.Red) / float64(total)
}

// Count tallies active cues per quadrant across all rounds.
func Count(rounds []model.Round, quadrants int) []QuadrantCount {
	counts := make([]QuadrantCount, quadrants)
	for q := range counts {
		counts[q].Quadrant = q
	}
	for _, r := range rounds {
		for _, cue := range r.Cues {
			if !cue.Active || cue.Quadrant < 0 || cue.Quadrant >= quadrants {
				continue
			}
			switch cue.Color {
			case model.ColorRed:
				counts[cue.Quadrant].Red++
			case model.ColorGreen:
				counts[cue.Quadrant].Green++
			}
		}
	}
	return counts
}

// Validate accepts a batch only if every quadrant meets its ratio contract.
func Validate(rounds []model.Round, quadrants, biased int) bool {
	for _, c := range Count(rounds, quadrants) {
		if c.Total() == 0 {
			return false
		}
		ratio := c.RedRatio()
		if c.Quadrant == biased {
			if ratio < BiasedMinRatio {
				return false
			}
			continue
		}
		if ratio < FairMinRatio || ratio > FairMaxRatio {
			return false
		}
	}
	return true
}
